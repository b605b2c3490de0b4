package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/agmanagement/kyc-intake/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestNewCipher_KeyLength(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantErr bool
	}{
		{name: "valid 32-byte key", keyLen: 32, wantErr: false},
		{name: "empty key", keyLen: 0, wantErr: true},
		{name: "16-byte key", keyLen: 16, wantErr: true},
		{name: "33-byte key", keyLen: 33, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(make([]byte, tt.keyLen))
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c := testCipher(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "empty", plaintext: []byte{}},
		{name: "short", plaintext: []byte("hello")},
		{name: "binary", plaintext: []byte{0x00, 0xff, 0x10, 0x80, 0x00}},
		{name: "large", plaintext: bytes.Repeat([]byte("evidence"), 8192)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := c.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.Len(t, payload.Nonce, NonceSize)
			assert.Len(t, payload.Tag, TagSize)
			assert.Len(t, payload.Ciphertext, len(tt.plaintext))

			plaintext, err := c.Decrypt(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, append([]byte{}, plaintext...))
		})
	}
}

func TestCipher_TamperDetection(t *testing.T) {
	c := testCipher(t)

	payload, err := c.Encrypt([]byte("kyc evidence bytes"))
	require.NoError(t, err)

	flip := func(src []byte, byteIdx int, bit uint) []byte {
		out := append([]byte{}, src...)
		out[byteIdx] ^= 1 << bit
		return out
	}

	t.Run("ciphertext bits", func(t *testing.T) {
		for byteIdx := range payload.Ciphertext {
			for bit := uint(0); bit < 8; bit++ {
				tampered := payload
				tampered.Ciphertext = flip(payload.Ciphertext, byteIdx, bit)
				plaintext, err := c.Decrypt(tampered)
				assert.ErrorIs(t, err, interfaces.ErrDecryptionAuth)
				assert.Nil(t, plaintext)
			}
		}
	})

	t.Run("tag bits", func(t *testing.T) {
		for byteIdx := range payload.Tag {
			for bit := uint(0); bit < 8; bit++ {
				tampered := payload
				tampered.Tag = flip(payload.Tag, byteIdx, bit)
				plaintext, err := c.Decrypt(tampered)
				assert.ErrorIs(t, err, interfaces.ErrDecryptionAuth)
				assert.Nil(t, plaintext)
			}
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other := testCipher(t)
		plaintext, err := other.Decrypt(payload)
		assert.ErrorIs(t, err, interfaces.ErrDecryptionAuth)
		assert.Nil(t, plaintext)
	})

	t.Run("truncated tag", func(t *testing.T) {
		tampered := payload
		tampered.Tag = payload.Tag[:TagSize-1]
		_, err := c.Decrypt(tampered)
		assert.ErrorIs(t, err, interfaces.ErrDecryptionAuth)
	})
}

func TestCipher_NonceUniqueness(t *testing.T) {
	c := testCipher(t)

	const samples = 10000
	seen := make(map[string]struct{}, samples)
	for i := 0; i < samples; i++ {
		payload, err := c.Encrypt([]byte("same plaintext"))
		require.NoError(t, err)
		_, dup := seen[string(payload.Nonce)]
		require.False(t, dup, "nonce collision after %d encryptions", i)
		seen[string(payload.Nonce)] = struct{}{}
	}
}
