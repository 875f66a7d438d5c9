package model

import "time"

// RefreshToken models a row in the `refresh_tokens` table.  The plain
// secret handed to the client is never stored; TokenHash holds its
// SHA-256 hex digest.
type RefreshToken struct {
	ID          string
	AccountID   string
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	Revoked     bool
	RotatedFrom *string
}

// Usable reports whether the record can still be exchanged at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

// TokenPair is what a successful login, registration or refresh hands
// back to the client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
