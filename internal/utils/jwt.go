package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/traafik/auth-svc/internal/model"
)

// DefaultAccessTTL is the access-token lifetime used when none is configured.
const DefaultAccessTTL = time.Hour

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short-lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// AccessClaims is the claim set carried by access tokens.  The subject is
// the account id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenSigner issues and verifies HS256 access tokens.  Secret, TTL and
// issuer are fixed at construction; rotating the secret invalidates every
// outstanding access token.  There is no revocation list, so a token stays
// valid until it expires.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenSigner builds a signer.  A non-positive ttl selects
// DefaultAccessTTL.
func NewTokenSigner(secret string, ttl time.Duration, issuer string) *TokenSigner {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// WithClock replaces the signer's time source.  Verification uses the same
// clock, which lets tests move past expiry without sleeping.
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	cp := *s
	cp.now = now
	return &cp
}

// TTL reports the configured access-token lifetime.
func (s *TokenSigner) TTL() time.Duration { return s.ttl }

// Issue signs the identity into a new access token expiring after the
// configured TTL.
func (s *TokenSigner) Issue(id model.Identity) (AccessToken, error) {
	// Expiry is derived from the signer's clock so tests can pin it.
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	// sub carries the account id; email and role ride along as private
	// claims so the gate can build an identity without a lookup.
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: id.Email,
		Role:  string(id.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify checks signature, algorithm, expiry and issuer of raw and
// returns the identity it carries.  Every failure is model.ErrInvalidToken.
func (s *TokenSigner) Verify(raw string) (model.Identity, error) {
	claims := &AccessClaims{}
	// Only HS256 is accepted and exp must be present.
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return model.Identity{}, &model.Error{Kind: model.KindInvalidToken, Message: model.ErrInvalidToken.Message, Err: err}
	}
	// A well-signed token must still name an account and a known role.
	role, ok := model.ParseRole(claims.Role)
	if claims.Subject == "" || !ok {
		return model.Identity{}, model.ErrInvalidToken
	}
	return model.Identity{AccountID: claims.Subject, Email: claims.Email, Role: role}, nil
}
