package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAPIKey is returned when a presented key does not match the stored hash
var ErrInvalidAPIKey = errors.New("invalid api key")

const apiKeyBytes = 24

// GenerateAPIKey returns a new random key suitable for Bearer authentication
func GenerateAPIKey() (string, error) {
	key := make([]byte, apiKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("could not generate random key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// HashAPIKey hashes key for storage in the config file
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("api key is empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hashed), nil
}

// VerifyAPIKey checks a presented key against the stored hash. An empty
// hash disables authentication and accepts any key.
func VerifyAPIKey(hash, key string) error {
	if hash == "" {
		return nil
	}
	if key == "" {
		return ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}
