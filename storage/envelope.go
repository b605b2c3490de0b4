package storage

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/agmanagement/kyc-intake/cryptoutils"
)

// envelope is the persisted shape of one encrypted artifact. Nonce and tag
// are hex, ciphertext is base64, matching the wire format consumed by the
// retrieval tooling.
type envelope struct {
	Nonce       string `json:"nonce"`
	AuthTag     string `json:"authTag"`
	Ciphertext  string `json:"ciphertext"`
	ContentType string `json:"contentType"`
}

func sealEnvelope(p cryptoutils.EncryptedPayload, contentType string) ([]byte, error) {
	return json.Marshal(envelope{
		Nonce:       hex.EncodeToString(p.Nonce),
		AuthTag:     hex.EncodeToString(p.Tag),
		Ciphertext:  base64.StdEncoding.EncodeToString(p.Ciphertext),
		ContentType: contentType,
	})
}

func openEnvelope(data []byte) (cryptoutils.EncryptedPayload, string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return cryptoutils.EncryptedPayload{}, "", fmt.Errorf("malformed artifact envelope: %w", err)
	}

	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return cryptoutils.EncryptedPayload{}, "", fmt.Errorf("malformed envelope nonce: %w", err)
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return cryptoutils.EncryptedPayload{}, "", fmt.Errorf("malformed envelope tag: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return cryptoutils.EncryptedPayload{}, "", fmt.Errorf("malformed envelope ciphertext: %w", err)
	}

	return cryptoutils.EncryptedPayload{Nonce: nonce, Tag: tag, Ciphertext: ciphertext}, env.ContentType, nil
}

// contentTypeFor maps a file extension to a MIME type, defaulting to
// application/octet-stream for anything unregistered.
func contentTypeFor(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
