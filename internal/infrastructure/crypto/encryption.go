// Package crypto seals reusable payment tokens at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKey   = errors.New("encryption key must be 32 bytes (64 hex chars)")
	ErrTokenBinding = errors.New("token does not belong to this owner")
)

// EncryptionService seals payment tokens. The owner id is bound as
// associated data, so a token copied onto another owner's row fails to open.
type EncryptionService interface {
	Encrypt(plaintext, ownerID string) (ciphertext, iv string, err error)
	Decrypt(ciphertext, iv, ownerID string) (plaintext string, err error)
}

type AESEncryptionService struct {
	aead cipher.AEAD
}

func NewAESEncryptionService(hexKey string) (*AESEncryptionService, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key format: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESEncryptionService{aead: gcm}, nil
}

func (s *AESEncryptionService) Encrypt(plaintext, ownerID string) (string, string, error) {
	if plaintext == "" {
		return "", "", errors.New("empty token")
	}

	iv := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", "", err
	}

	ciphertext := s.aead.Seal(nil, iv, []byte(plaintext), []byte(ownerID))

	return base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(iv),
		nil
}

func (s *AESEncryptionService) Decrypt(ciphertextB64, ivB64, ownerID string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}

	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", fmt.Errorf("invalid iv encoding: %w", err)
	}
	if len(iv) != s.aead.NonceSize() {
		return "", fmt.Errorf("invalid iv length %d", len(iv))
	}

	plaintext, err := s.aead.Open(nil, iv, ciphertext, []byte(ownerID))
	if err != nil {
		return "", ErrTokenBinding
	}

	return string(plaintext), nil
}
