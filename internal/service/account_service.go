package service

import (
	"context"
	"errors"

	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/queue"
)

var errUserNotFound = model.NewError(model.KindNotFound, "user not found")

// Profile returns the active account with the given id.
func (s *SessionService) Profile(ctx context.Context, accountID string) (model.Account, error) {
	sctx, cancel := s.store(ctx)
	defer cancel()
	acc, err := s.accounts.GetByID(sctx, accountID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Account{}, errUserNotFound
		}
		return model.Account{}, s.internal("lookup user", err)
	}
	return acc, nil
}

// UpdateProfile applies upd and returns the updated account.  The
// result must still satisfy the profile rules of the account's role.
func (s *SessionService) UpdateProfile(ctx context.Context, accountID string, upd model.AccountUpdate) (acc model.Account, err error) {
	defer func() { s.metrics.Op("update_profile", err) }()

	acc, err = s.Profile(ctx, accountID)
	if err != nil {
		return model.Account{}, err
	}
	if upd.Empty() {
		return acc, nil
	}
	merged := upd.Apply(acc.Profile)
	if err := merged.CheckRole(acc.Role); err != nil {
		return model.Account{}, err
	}

	sctx, cancel := s.store(ctx)
	err = s.accounts.Update(sctx, accountID, upd)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Account{}, errUserNotFound
		}
		return model.Account{}, s.internal("update user", err)
	}
	acc.Profile = merged
	acc.UpdatedAt = s.now().UTC()
	return acc, nil
}

// ListUsers returns the active accounts holding role, newest first.  An
// empty role lists every active account grouped by role in model.Roles
// order.
func (s *SessionService) ListUsers(ctx context.Context, role string) ([]model.Account, error) {
	roles := model.Roles
	if role != "" {
		r, ok := model.ParseRole(role)
		if !ok {
			return nil, model.Validationf("Role must be admin, officer, or user")
		}
		roles = []model.Role{r}
	}

	out := []model.Account{}
	for _, r := range roles {
		sctx, cancel := s.store(ctx)
		accounts, err := s.accounts.ListByRole(sctx, r)
		cancel()
		if err != nil {
			return nil, s.internal("list users", err)
		}
		out = append(out, accounts...)
	}
	return out, nil
}

// Deactivate soft-deletes an account on behalf of actorID and revokes
// its refresh tokens.  Outstanding access tokens stop working at the
// next Authenticate because the account is reloaded there.
func (s *SessionService) Deactivate(ctx context.Context, actorID, accountID string) (err error) {
	defer func() { s.metrics.Op("deactivate", err) }()

	if actorID == accountID {
		return model.Validationf("cannot deactivate your own account")
	}
	acc, err := s.Profile(ctx, accountID)
	if err != nil {
		return err
	}

	sctx, cancel := s.store(ctx)
	err = s.accounts.Deactivate(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return errUserNotFound
		}
		return s.internal("deactivate user", err)
	}

	sctx, cancel = s.store(ctx)
	n, err := s.tokens.RevokeAllForAccount(sctx, accountID)
	cancel()
	if err != nil {
		return s.internal("revoke refresh tokens", err)
	}
	s.log.Infof("Session service: account %s deactivated by %s, revoked %d refresh tokens", accountID, actorID, n)
	s.publish(ctx, queue.AccountEvent{
		Type:          queue.EventAccountDeactivated,
		AccountID:     accountID,
		Email:         acc.Email,
		Role:          string(acc.Role),
		ActorID:       actorID,
		RevokedTokens: n,
	})
	return nil
}

// Sweep purges expired and revoked refresh tokens.  It is housekeeping
// only; a failure is reported and retried on the next run.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.tokens.SweepExpired(ctx)
	s.metrics.Sweep(n, err)
	if err != nil {
		s.log.Errorf("Session service: sweep refresh tokens: %v", err)
		return n, model.Internal("sweep refresh tokens", err)
	}
	if n > 0 {
		s.log.Infof("Session service: swept %d refresh tokens", n)
	}
	return n, nil
}
