package service

import (
	"context"
	"time"

	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/queue"
	"github.com/traafik/auth-svc/internal/utils"
)

// AccountStore is the account persistence the service depends on.
// Lookups see active accounts only and miss with model.ErrNotFound.
type AccountStore interface {
	Create(ctx context.Context, a model.Account) error
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id string) (model.Account, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.Account, error)
	Update(ctx context.Context, id string, upd model.AccountUpdate) error
	UpdatePassword(ctx context.Context, id, hash string) error
	Deactivate(ctx context.Context, id string) error
}

// TokenStore is the refresh-token persistence.  Rotate must revoke the
// presented token and insert its replacement atomically.
type TokenStore interface {
	Issue(ctx context.Context, accountID string) (string, time.Time, error)
	Lookup(ctx context.Context, raw string) (model.RefreshToken, error)
	Revoke(ctx context.Context, raw string) (bool, error)
	RevokeAllForAccount(ctx context.Context, accountID string) (int64, error)
	Rotate(ctx context.Context, raw string) (model.RefreshToken, string, time.Time, error)
	SweepExpired(ctx context.Context) (int64, error)
}

// EventPublisher receives account events.  Failures never fail the
// operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AccountEvent) error
}

// AccessTokens issues and verifies access tokens.
type AccessTokens interface {
	Issue(id model.Identity) (utils.AccessToken, error)
	Verify(raw string) (model.Identity, error)
}

// Passwords hashes and checks passwords.
type Passwords interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}
