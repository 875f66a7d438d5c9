package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// refreshSecretBytes is the entropy of a refresh secret (256 bits).
const refreshSecretBytes = 32

// NewRefreshSecret returns a cryptographically secure random refresh
// secret, hex encoded (64 characters).
func NewRefreshSecret() (string, error) {
	return randomHex(refreshSecretBytes)
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string.  Only this hash is stored, so a leaked table cannot be replayed.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
