package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/agmanagement/kyc-intake/cryptoutils"
	"github.com/agmanagement/kyc-intake/interfaces"
)

// EncryptedStore implements interfaces.ArtifactStore by encrypting artifacts
// with the injected cipher and delegating envelope persistence to a backend.
type EncryptedStore struct {
	cipher  *cryptoutils.Cipher
	backend interfaces.ArtifactBackend
	log     *slog.Logger
}

// NewEncryptedStore creates an artifact store over the given cipher and
// backend. Both are process-wide and safe for concurrent use.
func NewEncryptedStore(cipher *cryptoutils.Cipher, backend interfaces.ArtifactBackend, log *slog.Logger) *EncryptedStore {
	return &EncryptedStore{cipher: cipher, backend: backend, log: log}
}

// Save encrypts data, seals it into an envelope, and persists it under kind.
// The returned reference is opaque and sufficient for Load.
func (s *EncryptedStore) Save(ctx context.Context, kind interfaces.FileKind, data []byte, ext string) (interfaces.ArtifactRef, error) {
	payload, err := s.cipher.Encrypt(data)
	if err != nil {
		return "", err
	}

	envelope, err := sealEnvelope(payload, contentTypeFor(ext))
	if err != nil {
		return "", err
	}

	name, err := artifactName(ext)
	if err != nil {
		return "", err
	}

	ref, err := s.backend.Put(ctx, kind, name, envelope)
	if err != nil {
		return "", err
	}

	s.log.Debug("Stored encrypted artifact",
		slog.String("kind", string(kind)),
		slog.String("backend", s.backend.Name()),
		slog.Int("size", len(data)))

	return ref, nil
}

// Load fetches an envelope by reference and decrypts it, returning the
// plaintext and the content type recorded at save time.
func (s *EncryptedStore) Load(ctx context.Context, ref interfaces.ArtifactRef) ([]byte, string, error) {
	raw, err := s.backend.Get(ctx, ref)
	if err != nil {
		return nil, "", err
	}

	payload, contentType, err := openEnvelope(raw)
	if err != nil {
		return nil, "", err
	}

	plaintext, err := s.cipher.Decrypt(payload)
	if err != nil {
		return nil, "", err
	}
	return plaintext, contentType, nil
}

// artifactName builds a collision-resistant filename: millisecond timestamp
// plus 64 bits of randomness, the original extension, and an encrypted
// marker. No locking is used anywhere, so accidental overwrite has to be
// astronomically unlikely by construction.
func artifactName(ext string) (string, error) {
	suffix := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, suffix); err != nil {
		return "", fmt.Errorf("failed to generate artifact name: %w", err)
	}

	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}

	return fmt.Sprintf("%d-%s.%s.enc", time.Now().UnixMilli(), hex.EncodeToString(suffix), ext), nil
}
