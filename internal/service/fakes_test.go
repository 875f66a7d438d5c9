package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/queue"
	"github.com/traafik/auth-svc/internal/utils"
)

// clock is a settable time source shared by the fakes and the signer.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memAccounts mirrors AccountRepo: lookups see active rows only, the
// email constraint covers every row.
type memAccounts struct {
	mu   sync.Mutex
	rows map[string]model.Account
	err  error
}

func newMemAccounts() *memAccounts { return &memAccounts{rows: map[string]model.Account{}} }

func (m *memAccounts) Create(_ context.Context, a model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, r := range m.rows {
		if r.Email == a.Email {
			return model.ErrDuplicateEmail
		}
	}
	m.rows[a.ID] = a
	return nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Account{}, m.err
	}
	for _, r := range m.rows {
		if r.Email == model.NormalizeEmail(email) && r.IsActive {
			return r, nil
		}
	}
	return model.Account{}, model.ErrNotFound
}

func (m *memAccounts) GetByID(_ context.Context, id string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Account{}, m.err
	}
	r, ok := m.rows[id]
	if !ok || !r.IsActive {
		return model.Account{}, model.ErrNotFound
	}
	return r, nil
}

func (m *memAccounts) ListByRole(_ context.Context, role model.Role) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Account{}
	for _, r := range m.rows {
		if r.Role == role && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memAccounts) Update(_ context.Context, id string, upd model.AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || !r.IsActive {
		return model.ErrNotFound
	}
	r.Profile = upd.Apply(r.Profile)
	m.rows[id] = r
	return nil
}

func (m *memAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || !r.IsActive {
		return model.ErrNotFound
	}
	r.PasswordHash = hash
	m.rows[id] = r
	return nil
}

func (m *memAccounts) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || !r.IsActive {
		return model.ErrNotFound
	}
	r.IsActive = false
	m.rows[id] = r
	return nil
}

// memTokens mirrors TokenRepo, keyed by hash; Rotate is atomic under mu.
type memTokens struct {
	mu        sync.Mutex
	now       func() time.Time
	ttl       time.Duration
	rows      map[string]*model.RefreshToken
	seq       int
	rotateErr error
}

func newMemTokens(now func() time.Time) *memTokens {
	return &memTokens{now: now, ttl: 7 * 24 * time.Hour, rows: map[string]*model.RefreshToken{}}
}

func (m *memTokens) insert(accountID string, from *string) (string, time.Time, error) {
	raw, err := utils.NewRefreshSecret()
	if err != nil {
		return "", time.Time{}, err
	}
	m.seq++
	now := m.now()
	rec := &model.RefreshToken{
		ID:          fmt.Sprintf("tok-%d", m.seq),
		AccountID:   accountID,
		TokenHash:   utils.HashRefreshRaw(raw),
		ExpiresAt:   now.Add(m.ttl),
		CreatedAt:   now,
		RotatedFrom: from,
	}
	m.rows[rec.TokenHash] = rec
	return raw, rec.ExpiresAt, nil
}

func (m *memTokens) Issue(_ context.Context, accountID string) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(accountID, nil)
}

func (m *memTokens) Lookup(_ context.Context, raw string) (model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[utils.HashRefreshRaw(raw)]
	if !ok || !rec.Usable(m.now()) {
		return model.RefreshToken{}, model.ErrNotFound
	}
	return *rec, nil
}

func (m *memTokens) Revoke(_ context.Context, raw string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[utils.HashRefreshRaw(raw)]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	return true, nil
}

func (m *memTokens) RevokeAllForAccount(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.rows {
		if rec.AccountID == accountID && !rec.Revoked {
			rec.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *memTokens) Rotate(_ context.Context, raw string) (model.RefreshToken, string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[utils.HashRefreshRaw(raw)]
	if !ok || !rec.Usable(m.now()) {
		return model.RefreshToken{}, "", time.Time{}, model.ErrNotFound
	}
	if m.rotateErr != nil {
		// nothing committed
		return model.RefreshToken{}, "", time.Time{}, m.rotateErr
	}
	rec.Revoked = true
	id := rec.ID
	next, exp, err := m.insert(rec.AccountID, &id)
	if err != nil {
		rec.Revoked = false
		return model.RefreshToken{}, "", time.Time{}, err
	}
	return *rec, next, exp, nil
}

func (m *memTokens) SweepExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, rec := range m.rows {
		if !rec.Usable(m.now()) {
			delete(m.rows, h)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) activeFor(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.rows {
		if rec.AccountID == accountID && rec.Usable(m.now()) {
			n++
		}
	}
	return n
}

type recordedEvents struct {
	mu     sync.Mutex
	events []queue.AccountEvent
	err    error
}

func (r *recordedEvents) Publish(_ context.Context, ev queue.AccountEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordedEvents) types() []queue.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type failingSigner struct{ AccessTokens }

func (failingSigner) Issue(model.Identity) (utils.AccessToken, error) {
	return utils.AccessToken{}, errors.New("signer offline")
}
