package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "v1:"

// TokenSealer encrypts stored OAuth tokens with XChaCha20-Poly1305 so the
// store never holds them in the clear.
//
// Sealed format (a single printable string, safe for TEXT columns):
//
//	v1:<base64url(nonce || ciphertext)>
//
// The random 24-byte XChaCha nonce is large enough that generating it per
// value never needs a counter.
type TokenSealer struct {
	key []byte
}

// NewTokenSealer builds a TokenSealer from a 32-byte key given as 64 hex chars.
func NewTokenSealer(hexKey string) (*TokenSealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("auth: decoding token encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("auth: token encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &TokenSealer{key: key}, nil
}

// Seal encrypts plaintext. The empty string stays empty so "no token" is
// still recognisable in the store.
func (s *TokenSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("auth: generating nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix were written before
// encryption was enabled and are returned unchanged.
func (s *TokenSealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("auth: decoding sealed token: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: creating cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("auth: sealed token too short")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("auth: opening sealed token: %w", err)
	}
	return string(plaintext), nil
}
