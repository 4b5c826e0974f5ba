// File: internal/infra/security/sealer.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// TokenSealer encrypts upstream session tokens before they leave the process.
// Output format: base64(nonce || AES-256-GCM ciphertext).
type TokenSealer struct {
	gcm cipher.AEAD
}

// NewTokenSealer derives the AES-256 key from secret with SHA-256, so any
// non-empty secret is accepted.
func NewTokenSealer(secret string) (*TokenSealer, error) {
	if secret == "" {
		return nil, errors.New("token sealer: empty secret")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &TokenSealer{gcm: gcm}, nil
}

func (s *TokenSealer) Seal(token string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(s.gcm.Seal(nonce, nonce, []byte(token), nil)), nil
}

func (s *TokenSealer) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := s.gcm.NonceSize()
	if len(data) < ns {
		return "", errors.New("sealed token too short")
	}
	pt, err := s.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}
