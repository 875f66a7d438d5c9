package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/traafik/auth-svc/internal/middleware"
	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/service"
)

// Sessions is the session core as seen by the HTTP layer.
type Sessions interface {
	Register(ctx context.Context, in service.Registration) (service.Session, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	Refresh(ctx context.Context, raw string) (model.TokenPair, error)
	Logout(ctx context.Context, raw string) error
	LogoutAll(ctx context.Context, accountID string) (int64, error)
	ChangePassword(ctx context.Context, accountID, current, next string) error
	Profile(ctx context.Context, accountID string) (model.Account, error)
	UpdateProfile(ctx context.Context, accountID string, upd model.AccountUpdate) (model.Account, error)
	ListUsers(ctx context.Context, role string) ([]model.Account, error)
	Deactivate(ctx context.Context, actorID, accountID string) error
}

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	Sessions Sessions
}

func NewAuthHandler(s Sessions) *AuthHandler {
	return &AuthHandler{Sessions: s}
}

// ----- DTOs -----

type profileFields struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Phone       *string `json:"phone"`
	BadgeNumber *string `json:"badgeNumber"`
	Department  *string `json:"department"`
}

func (p profileFields) update() model.AccountUpdate {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	return model.AccountUpdate{
		FirstName:   trim(p.FirstName),
		LastName:    trim(p.LastName),
		Phone:       trim(p.Phone),
		BadgeNumber: trim(p.BadgeNumber),
		Department:  trim(p.Department),
	}
}

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	profileFields
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type accountView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	BadgeNumber   string    `json:"badgeNumber,omitempty"`
	Department    string    `json:"department,omitempty"`
	IsActive      bool      `json:"isActive"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func viewOf(a model.Account) accountView {
	return accountView{
		ID:            a.ID,
		Email:         a.Email,
		Role:          string(a.Role),
		FirstName:     a.Profile.FirstName,
		LastName:      a.Profile.LastName,
		Phone:         a.Profile.Phone,
		BadgeNumber:   a.Profile.BadgeNumber,
		Department:    a.Profile.Department,
		IsActive:      a.IsActive,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type tokensView struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

func tokensOf(p model.TokenPair) tokensView {
	return tokensView{
		AccessToken:           p.AccessToken,
		AccessTokenExpiresAt:  p.AccessExpiresAt,
		RefreshToken:          p.RefreshToken,
		RefreshTokenExpiresAt: p.RefreshExpiresAt,
	}
}

type sessionView struct {
	User accountView `json:"user"`
	tokensView
}

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return model.Validationf("invalid request body")
	}
	return nil
}

func caller(c echo.Context) (model.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return model.Identity{}, model.ErrUnauthenticated
	}
	return id, nil
}

// ----- handlers -----

// Register creates an account and returns it with a token pair.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}

	var fe fieldErrors
	fe.email(req.Email)
	fe.password("password", "Password", req.Password)
	role, ok := model.ParseRole(req.Role)
	if !ok {
		fe.add("role", "Role must be admin, officer, or user")
	}
	fe.profile(req.profileFields)
	if err := fe.err(); err != nil {
		return err
	}

	sess, err := h.Sessions.Register(c.Request().Context(), service.Registration{
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
		Profile:  req.update().Apply(model.Profile{}),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, envelope{
		Message: "User registered successfully",
		Data:    sessionView{User: viewOf(sess.Account), tokensView: tokensOf(sess.Tokens)},
	})
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	var fe fieldErrors
	fe.email(req.Email)
	if req.Password == "" {
		fe.add("password", "Password is required")
	}
	if err := fe.err(); err != nil {
		return err
	}

	sess, err := h.Sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{
		Message: "Login successful",
		Data:    sessionView{User: viewOf(sess.Account), tokensView: tokensOf(sess.Tokens)},
	})
}

func (h *AuthHandler) refreshToken(c echo.Context) (string, error) {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return "", err
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		var fe fieldErrors
		fe.add("refreshToken", "Refresh token is required")
		return "", fe.err()
	}
	return raw, nil
}

// Refresh rotates a refresh token into a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw, err := h.refreshToken(c)
	if err != nil {
		return err
	}
	pair, err := h.Sessions.Refresh(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Message: "Token refreshed successfully", Data: tokensOf(pair)})
}

// Logout revokes the refresh token in the body.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, err := h.refreshToken(c)
	if err != nil {
		return err
	}
	if err := h.Sessions.Logout(c.Request().Context(), raw); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Message: "Logout successful"})
}

// LogoutAll revokes every refresh token of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	n, err := h.Sessions.LogoutAll(c.Request().Context(), id.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{
		Message: "Logged out from all devices",
		Data:    echo.Map{"revokedTokens": n},
	})
}

// ChangePassword replaces the caller's password and ends all sessions.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	var fe fieldErrors
	if req.CurrentPassword == "" {
		fe.add("currentPassword", "Current password is required")
	}
	fe.password("newPassword", "New password", req.NewPassword)
	if err := fe.err(); err != nil {
		return err
	}

	if err := h.Sessions.ChangePassword(c.Request().Context(), id.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Message: "Password changed successfully"})
}

// Profile returns the caller's account.
func (h *AuthHandler) Profile(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	acc, err := h.Sessions.Profile(c.Request().Context(), id.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Message: "Profile retrieved successfully", Data: viewOf(acc)})
}

// UpdateProfile applies a partial profile update for the caller.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req profileFields
	if err := bind(c, &req); err != nil {
		return err
	}
	var fe fieldErrors
	fe.profile(req)
	if err := fe.err(); err != nil {
		return err
	}

	acc, err := h.Sessions.UpdateProfile(c.Request().Context(), id.AccountID, req.update())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Message: "Profile updated successfully", Data: viewOf(acc)})
}
