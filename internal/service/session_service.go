// Package service holds the session core: registration, login, refresh
// rotation, revocation and the account operations built on top of them.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/traafik/auth-svc/internal/metrics"
	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/queue"
	"github.com/traafik/auth-svc/internal/utils"
)

// DefaultStoreTimeout bounds every individual store call.
const DefaultStoreTimeout = 5 * time.Second

// Config is the service-level configuration.
type Config struct {
	StoreTimeout time.Duration
}

// Deps bundles the collaborators of SessionService.  Events and Metrics
// are optional.
type Deps struct {
	Accounts AccountStore
	Tokens   TokenStore
	Signer   AccessTokens
	Hasher   Passwords
	Events   EventPublisher
	Metrics  *metrics.Recorder
	Log      echo.Logger
}

// SessionService is stateless between requests; all coordination goes
// through the stores.
type SessionService struct {
	accounts AccountStore
	tokens   TokenStore
	signer   AccessTokens
	hasher   Passwords
	events   EventPublisher
	metrics  *metrics.Recorder
	log      echo.Logger
	cfg      Config

	now   func() time.Time
	newID func() string
}

func NewSessionService(d Deps, cfg Config) *SessionService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	return &SessionService{
		accounts: d.Accounts,
		tokens:   d.Tokens,
		signer:   d.Signer,
		hasher:   d.Hasher,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Log,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Registration is the input of Register.  Password policy and email
// format are checked by the transport before it gets here.
type Registration struct {
	Email    string
	Password string
	Role     model.Role
	Profile  model.Profile
}

// Session is an account together with a freshly issued token pair.
type Session struct {
	Account model.Account
	Tokens  model.TokenPair
}

func (s *SessionService) store(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// Register creates an account and signs it in.
func (s *SessionService) Register(ctx context.Context, in Registration) (sess Session, err error) {
	defer func() { s.metrics.Op("register", err) }()

	if _, ok := model.ParseRole(string(in.Role)); !ok {
		return Session{}, model.Validationf("Role must be admin, officer, or user")
	}
	if err := in.Profile.CheckRole(in.Role); err != nil {
		return Session{}, err
	}
	if err := checkPasswordLen("password", in.Password); err != nil {
		return Session{}, err
	}
	email := model.NormalizeEmail(in.Email)

	sctx, cancel := s.store(ctx)
	_, err = s.accounts.GetByEmail(sctx, email)
	cancel()
	switch {
	case err == nil:
		return Session{}, model.ErrDuplicateEmail
	case !errors.Is(err, model.ErrNotFound):
		return Session{}, s.internal("lookup user by email", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, s.internal("hash password", err)
	}

	now := s.now().UTC()
	acc := model.Account{
		ID:           s.newID(),
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		Profile:      in.Profile,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sctx, cancel = s.store(ctx)
	err = s.accounts.Create(sctx, acc)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			return Session{}, model.ErrDuplicateEmail
		}
		return Session{}, s.internal("create user", err)
	}

	pair, err := s.issuePair(ctx, acc.Identity())
	if err != nil {
		return Session{}, err
	}
	s.log.Infof("Session service: registered account %s role=%s", acc.ID, acc.Role)
	s.publish(ctx, queue.AccountEvent{Type: queue.EventAccountRegistered, AccountID: acc.ID, Email: acc.Email, Role: string(acc.Role), ActorID: acc.ID})
	return Session{Account: acc, Tokens: pair}, nil
}

// Login verifies credentials.  Unknown email, wrong password and an
// inactive account all fail with the same model.ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, email, password string) (sess Session, err error) {
	defer func() { s.metrics.Op("login", err) }()

	sctx, cancel := s.store(ctx)
	acc, err := s.accounts.GetByEmail(sctx, model.NormalizeEmail(email))
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Session{}, model.ErrInvalidCredentials
		}
		return Session{}, s.internal("lookup user by email", err)
	}
	if !s.hasher.Verify(acc.PasswordHash, password) || !acc.IsActive {
		s.log.Warnf("Session service: rejected login for account %s", acc.ID)
		return Session{}, model.ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, acc.Identity())
	if err != nil {
		return Session{}, err
	}
	return Session{Account: acc, Tokens: pair}, nil
}

// Refresh exchanges a refresh secret for a new pair.  The presented
// secret is consumed: replaying it fails with model.ErrInvalidRefreshToken.
func (s *SessionService) Refresh(ctx context.Context, raw string) (pair model.TokenPair, err error) {
	defer func() { s.metrics.Op("refresh", err) }()

	sctx, cancel := s.store(ctx)
	rec, err := s.tokens.Lookup(sctx, raw)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.TokenPair{}, model.ErrInvalidRefreshToken
		}
		return model.TokenPair{}, s.internal("lookup refresh token", err)
	}

	sctx, cancel = s.store(ctx)
	acc, err := s.accounts.GetByID(sctx, rec.AccountID)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.TokenPair{}, model.ErrAccountUnavailable
		}
		return model.TokenPair{}, s.internal("lookup user", err)
	}
	if !acc.IsActive {
		return model.TokenPair{}, model.ErrAccountUnavailable
	}

	// Sign before rotating so a signing failure leaves the old token usable.
	access, err := s.signer.Issue(acc.Identity())
	if err != nil {
		return model.TokenPair{}, s.internal("sign access token", err)
	}

	sctx, cancel = s.store(ctx)
	_, next, exp, err := s.tokens.Rotate(sctx, raw)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.log.Warnf("Session service: refresh token for account %s was consumed concurrently", acc.ID)
			return model.TokenPair{}, model.ErrInvalidRefreshToken
		}
		return model.TokenPair{}, s.internal("rotate refresh token", err)
	}

	return model.TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     next,
		RefreshExpiresAt: exp,
	}, nil
}

// Logout revokes a single refresh secret.  Unknown or already revoked
// secrets are not an error.
func (s *SessionService) Logout(ctx context.Context, raw string) (err error) {
	defer func() { s.metrics.Op("logout", err) }()

	sctx, cancel := s.store(ctx)
	defer cancel()
	found, err := s.tokens.Revoke(sctx, raw)
	if err != nil {
		return s.internal("revoke refresh token", err)
	}
	if !found {
		s.log.Debugf("Session service: logout with unknown or revoked refresh token")
	}
	return nil
}

// LogoutAll revokes every refresh token of the account and returns how
// many were still active.
func (s *SessionService) LogoutAll(ctx context.Context, accountID string) (n int64, err error) {
	defer func() { s.metrics.Op("logout_all", err) }()

	sctx, cancel := s.store(ctx)
	n, err = s.tokens.RevokeAllForAccount(sctx, accountID)
	cancel()
	if err != nil {
		return 0, s.internal("revoke refresh tokens", err)
	}
	s.log.Infof("Session service: revoked %d refresh tokens for account %s", n, accountID)
	s.publish(ctx, queue.AccountEvent{Type: queue.EventLogoutAll, AccountID: accountID, ActorID: accountID, RevokedTokens: n})
	return n, nil
}

// ChangePassword replaces the password after checking the current one,
// then revokes every refresh token of the account.
func (s *SessionService) ChangePassword(ctx context.Context, accountID, current, next string) (err error) {
	defer func() { s.metrics.Op("change_password", err) }()

	sctx, cancel := s.store(ctx)
	acc, err := s.accounts.GetByID(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewError(model.KindNotFound, "user not found")
		}
		return s.internal("lookup user", err)
	}
	if !s.hasher.Verify(acc.PasswordHash, current) {
		return model.Validationf("Current password is incorrect")
	}
	if err := checkPasswordLen("newPassword", next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return s.internal("hash password", err)
	}
	sctx, cancel = s.store(ctx)
	err = s.accounts.UpdatePassword(sctx, accountID, hash)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewError(model.KindNotFound, "user not found")
		}
		return s.internal("update password", err)
	}

	sctx, cancel = s.store(ctx)
	n, err := s.tokens.RevokeAllForAccount(sctx, accountID)
	cancel()
	if err != nil {
		return s.internal("revoke refresh tokens", err)
	}
	s.log.Infof("Session service: password changed for account %s, revoked %d refresh tokens", accountID, n)
	s.publish(ctx, queue.AccountEvent{Type: queue.EventPasswordChanged, AccountID: accountID, ActorID: accountID, RevokedTokens: n})
	return nil
}

// Authenticate resolves a bearer access token to a live identity.  The
// account is reloaded so a deactivation takes effect before the token
// expires.  Every failure is model.ErrUnauthenticated except store
// failures, which stay internal.
func (s *SessionService) Authenticate(ctx context.Context, raw string) (model.Identity, error) {
	claims, err := s.signer.Verify(raw)
	if err != nil {
		return model.Identity{}, model.ErrUnauthenticated
	}

	sctx, cancel := s.store(ctx)
	acc, err := s.accounts.GetByID(sctx, claims.AccountID)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Identity{}, model.ErrUnauthenticated
		}
		return model.Identity{}, s.internal("lookup user", err)
	}
	if !acc.IsActive {
		return model.Identity{}, model.ErrUnauthenticated
	}
	// Role and email come from the row, not the possibly stale claims.
	return acc.Identity(), nil
}

func (s *SessionService) issuePair(ctx context.Context, id model.Identity) (model.TokenPair, error) {
	access, err := s.signer.Issue(id)
	if err != nil {
		return model.TokenPair{}, s.internal("sign access token", err)
	}
	sctx, cancel := s.store(ctx)
	defer cancel()
	raw, exp, err := s.tokens.Issue(sctx, id.AccountID)
	if err != nil {
		return model.TokenPair{}, s.internal("issue refresh token", err)
	}
	return model.TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     raw,
		RefreshExpiresAt: exp,
	}, nil
}

func (s *SessionService) internal(op string, err error) error {
	s.log.Errorf("Session service: %s: %v", op, err)
	return model.Internal(op, err)
}

// checkPasswordLen rejects passwords bcrypt cannot hash.
func checkPasswordLen(field, plain string) error {
	if len(plain) <= utils.MaxPasswordBytes {
		return nil
	}
	return &model.Error{
		Kind:    model.KindValidation,
		Message: "Validation failed",
		Details: []model.FieldError{{Field: field, Message: "Password must be at most 72 bytes long"}},
	}
}

func (s *SessionService) publish(ctx context.Context, ev queue.AccountEvent) {
	if s.events == nil {
		return
	}
	ev.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warnf("Session service: publish %s for account %s: %v", ev.Type, ev.AccountID, err)
	}
}
