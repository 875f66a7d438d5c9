// Package middleware holds the echo middleware of the auth service: the
// authorization gate, role checks and rate limiting.
package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/traafik/auth-svc/internal/model"
)

// Gate resolves a raw access token to a live identity.
type Gate interface {
	Authenticate(ctx context.Context, raw string) (model.Identity, error)
}

// Authenticate requires a valid bearer access token belonging to an
// active account and attaches the resolved identity to the context.
// Failures are returned as model errors for the HTTP error handler.
func Authenticate(gate Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Expect "Authorization: Bearer <jwt>".
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return model.NewError(model.KindUnauthenticated, "missing bearer token")
			}
			// The gate verifies the token and reloads the account, so a
			// deactivated account is rejected even with a live token.
			id, err := gate.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return err
			}
			// Handlers and RequireRole read the identity via IdentityFrom.
			setIdentity(c, id)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header.  The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
