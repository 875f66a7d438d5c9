// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/traafik/auth-svc/internal/handler"
	"github.com/traafik/auth-svc/internal/middleware"
	"github.com/traafik/auth-svc/internal/model"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "auth-svc"

// RegisterRoutes exposes the unauthenticated operational endpoints.
// metrics may be nil.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	e.GET("/health", handler.Health(ServiceName))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth mounts the auth API under /v1/auth.  Credential-taking
// endpoints sit behind limiter; everything else requires a bearer token,
// and user management additionally requires the admin role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, gate middleware.Gate, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")

	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh, limiter)

	auth := middleware.Authenticate(gate)
	g.POST("/logout", a.Logout, auth)
	g.POST("/logout-all", a.LogoutAll, auth)
	g.POST("/change-password", a.ChangePassword, auth)
	g.GET("/profile", a.Profile, auth)
	g.PATCH("/profile", a.UpdateProfile, auth)

	admin := middleware.RequireRole(model.RoleAdmin)
	g.GET("/users", a.ListUsers, auth, admin)
	g.DELETE("/users/:id", a.DeactivateUser, auth, admin)
}
