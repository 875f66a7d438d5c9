package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ListUsers returns active accounts, optionally filtered by ?role=.
// Admin only.
func (h *AuthHandler) ListUsers(c echo.Context) error {
	accounts, err := h.Sessions.ListUsers(c.Request().Context(), strings.TrimSpace(c.QueryParam("role")))
	if err != nil {
		return err
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, viewOf(a))
	}
	return c.JSON(http.StatusOK, envelope{Message: "Users retrieved successfully", Data: views})
}

// DeactivateUser soft-deletes the account named by :id.  Admin only.
func (h *AuthHandler) DeactivateUser(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.Sessions.Deactivate(c.Request().Context(), id.AccountID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Message: "User deactivated successfully"})
}
