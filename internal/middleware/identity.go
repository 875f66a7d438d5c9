package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/traafik/auth-svc/internal/model"
)

// identityKey is the echo context key the gate stores the caller under.
const identityKey = "identity"

// IdentityFrom returns the caller attached by Authenticate.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok && id.AccountID != ""
}

func setIdentity(c echo.Context, id model.Identity) { c.Set(identityKey, id) }

// subject identifies the caller for rate-limit keys: the account id when
// authenticated, "anon" otherwise.
func subject(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return id.AccountID
	}
	return "anon"
}
