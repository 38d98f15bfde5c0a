package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Sealer encrypts session payloads with AES-256-GCM.
// Sealed data is laid out as [nonce][ciphertext+tag].
type Sealer struct {
	gcm cipher.AEAD
}

// ParseEncryptionKey decodes a base64 key. It must decode to exactly 32 bytes.
func ParseEncryptionKey(keyStr string) ([]byte, error) {
	if keyStr == "" {
		return nil, errors.New("encryption key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(keyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key from base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key length: got %d bytes, expected 32 bytes for AES-256", len(key))
	}
	return key, nil
}

// NewSealer creates a sealer from a base64-encoded 32-byte key
func NewSealer(keyStr string) (*Sealer, error) {
	key, err := ParseEncryptionKey(keyStr)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext under a fresh random nonce
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal and verifies its tag
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("sealed data too short - missing nonce")
	}

	plaintext, err := s.gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (authentication tag verification failed): %w", err)
	}
	return plaintext, nil
}
