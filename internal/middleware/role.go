package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/traafik/auth-svc/internal/model"
)

// RequireRole lets the request through only when the identity attached
// by Authenticate holds one of roles.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return model.ErrUnauthenticated
			}
			if !allowed[id.Role] {
				return model.ErrForbidden
			}
			return next(c)
		}
	}
}
