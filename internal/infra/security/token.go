package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// GenerateSecureToken returns a URL-safe random string built from byteLength
// random bytes. Password-reset tokens and the ephemeral development signing
// secret come from here.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", errors.New("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of the value. Reset tokens are
// persisted only in this form; the plaintext never touches storage.
func HashToken(value string) string {
	digest := sha256.Sum256([]byte(value))
	return hex.EncodeToString(digest[:])
}
