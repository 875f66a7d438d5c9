// Package utils provides the credential primitives of the auth service:
// bcrypt password hashing, HS256 access tokens and opaque refresh secrets.
package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 12

// MaxPasswordBytes is the longest input bcrypt accepts; longer passwords
// are rejected rather than truncated.
const MaxPasswordBytes = 72

// PasswordHasher hashes and verifies passwords with bcrypt.  The digest
// is self-describing (it embeds salt and cost), so Verify needs nothing
// besides the stored hash.
type PasswordHasher struct {
	Cost int
}

// NewPasswordHasher returns a hasher using cost, falling back to
// DefaultBcryptCost when cost is outside bcrypt's accepted range.
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return PasswordHasher{Cost: cost}
}

// Hash returns the bcrypt hash of plain.
func (h PasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify safely compares a bcrypt hash with a plain password.  A malformed
// hash is reported as a mismatch.
func (h PasswordHasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
