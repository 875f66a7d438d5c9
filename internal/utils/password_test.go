package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	for _, p := range []string{"Abcd1234", "correct horse battery staple", "ÜñíçødéP4ss", ""} {
		digest, err := h.Hash(p)
		require.NoError(t, err)
		assert.NotEqual(t, p, digest)
		assert.True(t, h.Verify(digest, p), "password %q", p)
		assert.False(t, h.Verify(digest, p+"x"), "password %q", p)
	}
}

func TestPasswordHasher_DigestEmbedsCost(t *testing.T) {
	h := NewPasswordHasher(5)

	digest, err := h.Hash("Abcd1234")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
	assert.True(t, strings.HasPrefix(digest, "$2a$05$"))
}

func TestPasswordHasher_SaltsEachHash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	a, err := h.Hash("Abcd1234")
	require.NoError(t, err)
	b, err := h.Hash("Abcd1234")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestPasswordHasher_VerifyMalformedDigest(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	assert.False(t, h.Verify("not-a-bcrypt-hash", "Abcd1234"))
	assert.False(t, h.Verify("", ""))
}

func TestNewPasswordHasher_DefaultCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(0).Cost)
	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(99).Cost)
	assert.Equal(t, 10, NewPasswordHasher(10).Cost)
}
