package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traafik/auth-svc/internal/handler"
	"github.com/traafik/auth-svc/internal/model"
)

type denyAll struct{}

func (denyAll) Authenticate(context.Context, string) (model.Identity, error) {
	return model.Identity{}, model.ErrUnauthenticated
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func TestRegisterAuth_Routes(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, http.NotFoundHandler())
	RegisterAuth(e, handler.NewAuthHandler(nil), denyAll{}, passthrough)

	var got []string
	for _, r := range e.Routes() {
		got = append(got, r.Method+" "+r.Path)
	}
	sort.Strings(got)
	assert.Equal(t, []string{
		"DELETE /v1/auth/users/:id",
		"GET /health",
		"GET /metrics",
		"GET /v1/auth/profile",
		"GET /v1/auth/users",
		"PATCH /v1/auth/profile",
		"POST /v1/auth/change-password",
		"POST /v1/auth/login",
		"POST /v1/auth/logout",
		"POST /v1/auth/logout-all",
		"POST /v1/auth/refresh",
		"POST /v1/auth/register",
	}, got)
}

func TestRegisterAuth_ProtectedRoutesUseGate(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(false)
	RegisterAuth(e, handler.NewAuthHandler(nil), denyAll{}, passthrough)

	req := httptest.NewRequest(http.MethodDelete, "/v1/auth/users/acc-1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer anything")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
