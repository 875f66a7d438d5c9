package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traafik/auth-svc/internal/model"
)

var testIdentity = model.Identity{AccountID: "acc-1", Email: "a@test.com", Role: model.RoleOfficer}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestTokenSigner_IssueVerify(t *testing.T) {
	s := NewTokenSigner("secret", time.Hour, "auth-svc")

	tok, err := s.Issue(testIdentity)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	id, err := s.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, id)
}

func TestTokenSigner_Expiry(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewTokenSigner("secret", time.Hour, "auth-svc").WithClock(fixedClock(issuedAt))

	tok, err := s.Issue(testIdentity)
	require.NoError(t, err)

	_, err = s.WithClock(fixedClock(issuedAt.Add(59 * time.Minute))).Verify(tok.Token)
	require.NoError(t, err)

	_, err = s.WithClock(fixedClock(issuedAt.Add(61 * time.Minute))).Verify(tok.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidToken))
	assert.Equal(t, model.KindInvalidToken, model.KindOf(err))
}

func TestTokenSigner_RejectsOtherSecret(t *testing.T) {
	tok, err := NewTokenSigner("secret-a", time.Hour, "").Issue(testIdentity)
	require.NoError(t, err)

	_, err = NewTokenSigner("secret-b", time.Hour, "").Verify(tok.Token)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestTokenSigner_RejectsOtherIssuer(t *testing.T) {
	tok, err := NewTokenSigner("secret", time.Hour, "someone-else").Issue(testIdentity)
	require.NoError(t, err)

	_, err = NewTokenSigner("secret", time.Hour, "auth-svc").Verify(tok.Token)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestTokenSigner_RejectsMalformed(t *testing.T) {
	s := NewTokenSigner("secret", time.Hour, "")
	for _, raw := range []string{"", "abc", "a.b.c", strings.Repeat("x", 300)} {
		_, err := s.Verify(raw)
		assert.ErrorIs(t, err, model.ErrInvalidToken, "raw %q", raw)
	}
}

func TestTokenSigner_RejectsNoneAlgorithm(t *testing.T) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "a@test.com",
		Role:  "admin",
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenSigner("secret", time.Hour, "").Verify(raw)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestTokenSigner_RejectsUnknownRole(t *testing.T) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "superuser",
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenSigner("secret", time.Hour, "").Verify(raw)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestNewTokenSigner_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultAccessTTL, NewTokenSigner("s", 0, "").TTL())
}
