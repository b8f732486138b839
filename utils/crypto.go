package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// Feed URLs are stored encrypted because they frequently embed private
// access tokens in the path or query string. The key is 64 hex characters
// (32 bytes), installed from configuration at startup, with the
// FEEDCAL_ENCRYPTION_KEY environment variable as fallback.

var errNoKey = errors.New("encryption key is not configured")

var configuredKey string

// SetEncryptionKey installs the key from application configuration. When no
// key was configured the FEEDCAL_ENCRYPTION_KEY environment variable is the
// fallback.
func SetEncryptionKey(hexKey string) {
	configuredKey = hexKey
}

func encryptionKey() ([]byte, error) {
	raw := configuredKey
	if raw == "" {
		raw = os.Getenv("FEEDCAL_ENCRYPTION_KEY")
	}
	if raw == "" {
		return nil, errNoKey
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// EncryptString seals plaintext with a random nonce and returns
// base64(nonce || ciphertext).
func EncryptString(plaintext string) (string, error) {
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}
