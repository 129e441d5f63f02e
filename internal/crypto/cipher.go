// Package crypto implements the token vault cipher for provider account
// credentials: AES-256-GCM with a random nonce per message, persisted as
// base64(nonce || ciphertext || tag).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

const keySize = 32

// ErrDecrypt is returned for every decryption failure. It is deliberately
// opaque: callers must not be able to distinguish a truncated blob, a
// tampered ciphertext, or a wrong key.
var ErrDecrypt = errors.New("decryption failed")

// Cipher encrypts and decrypts token blobs.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromEnv creates a Cipher from the ENCRYPTION_KEY environment variable.
func NewFromEnv() (*Cipher, error) {
	raw := os.Getenv("ENCRYPTION_KEY")
	if raw == "" {
		return nil, errors.New("ENCRYPTION_KEY environment variable is required")
	}
	key, err := ParseKey(raw)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// ParseKey decodes an encryption key given as either 64 hex characters or
// 44 standard-base64 characters, both decoding to exactly 32 bytes.
func ParseKey(raw string) ([]byte, error) {
	switch len(raw) {
	case 64:
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid hex encryption key: %w", err)
		}
		return key, nil
	case 44:
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 encryption key: %w", err)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("encryption key must decode to %d bytes, got %d", keySize, len(key))
		}
		return key, nil
	default:
		return nil, fmt.Errorf("encryption key must be 64 hex or 44 base64 characters, got %d", len(raw))
	}
}

// Encrypt seals plaintext and returns the base64 storage form.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 storage blob produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecrypt
	}
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return nil, ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
