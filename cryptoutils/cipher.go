package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/agmanagement/kyc-intake/interfaces"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the GCM nonce length in bytes. A fresh random nonce is
	// generated per encryption; reuse under the same key breaks GCM.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// EncryptedPayload carries the three parts of one encryption, each
// independently encodable for storage in a JSON envelope.
type EncryptedPayload struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// Cipher performs authenticated symmetric encryption under a single
// process-wide key. Safe for concurrent use; the key is read-only after
// construction.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from 32 bytes of key material. Any other length
// is rejected with ErrConfiguration: silently truncating or padding a key
// would make earlier ciphertexts unrecoverable.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: cipher key must be %d bytes, got %d", interfaces.ErrConfiguration, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the nonce,
// authentication tag, and ciphertext separately.
func (c *Cipher) Encrypt(plaintext []byte) (EncryptedPayload, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedPayload{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)

	// GCM appends the tag to the ciphertext; split it off so nonce, tag,
	// and ciphertext round-trip through the envelope independently.
	split := len(sealed) - TagSize
	return EncryptedPayload{
		Nonce:      nonce,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// Decrypt opens a payload produced by Encrypt. Any integrity failure (bit
// flip in ciphertext or tag, wrong key, wrong nonce) returns
// ErrDecryptionAuth and no plaintext.
func (c *Cipher) Decrypt(p EncryptedPayload) ([]byte, error) {
	if len(p.Nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", interfaces.ErrDecryptionAuth, NonceSize)
	}
	if len(p.Tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes", interfaces.ErrDecryptionAuth, TagSize)
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.Tag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.Tag...)

	plaintext, err := c.aead.Open(nil, p.Nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionAuth, err)
	}
	return plaintext, nil
}
