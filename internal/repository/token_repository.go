package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/utils"
)

// DefaultRefreshTTL is the refresh-token lifetime used when none is configured.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// sweepBatch bounds how many rows a single sweep DELETE touches so the
// housekeeping job never holds long row locks.
const sweepBatch = 1000

// TokenRepo persists and validates refresh tokens (single `token_hash`
// column).  A record is usable iff revoked = FALSE AND expires_at > now.
type TokenRepo struct {
	DB  *sql.DB
	TTL time.Duration
	Now func() time.Time
}

// NewTokenRepo returns a repository issuing tokens that live for ttl.  A
// non-positive ttl selects DefaultRefreshTTL.
func NewTokenRepo(db *sql.DB, ttl time.Duration) *TokenRepo {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &TokenRepo{DB: db, TTL: ttl, Now: time.Now}
}

func (r *TokenRepo) now() time.Time { return r.Now().UTC() }

// Issue generates a new refresh secret for accountID, stores its hash and
// returns the plain secret.  The plain value cannot be recovered later.
func (r *TokenRepo) Issue(ctx context.Context, accountID string) (string, time.Time, error) {
	raw, err := utils.NewRefreshSecret()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	now := r.now()
	exp := now.Add(r.TTL)
	if err := insertToken(ctx, r.DB, ulid.Make().String(), accountID, utils.HashRefreshRaw(raw), exp, now, nil); err != nil {
		return "", time.Time{}, err
	}
	return raw, exp, nil
}

// Lookup returns the usable record matching raw, or model.ErrNotFound.
func (r *TokenRepo) Lookup(ctx context.Context, raw string) (model.RefreshToken, error) {
	var (
		t           model.RefreshToken
		rotatedFrom sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at, revoked, rotated_from
		FROM refresh_tokens WHERE token_hash = ? AND revoked = FALSE AND expires_at > ? LIMIT 1`,
		utils.HashRefreshRaw(raw), r.now()).
		Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.Revoked, &rotatedFrom)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rotatedFrom.Valid {
		t.RotatedFrom = &rotatedFrom.String
	}
	return t, nil
}

// Revoke marks the record matching raw as revoked and reports whether an
// unrevoked record was found.
func (r *TokenRepo) Revoke(ctx context.Context, raw string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = ? AND revoked = FALSE",
		utils.HashRefreshRaw(raw))
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return n > 0, nil
}

// RevokeAllForAccount revokes every active token of the account and
// returns how many rows changed.
func (r *TokenRepo) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = ? AND revoked = FALSE",
		accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens for user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens for user: %w", err)
	}
	return n, nil
}

// Rotate consumes the record matching raw and issues its replacement in a
// single transaction.  The presented row is locked with FOR UPDATE, so two
// concurrent rotations of the same secret cannot both succeed: the loser
// sees a revoked row and gets model.ErrNotFound.  Either the old row is
// revoked and the new one inserted, or neither happens.
func (r *TokenRepo) Rotate(ctx context.Context, raw string) (old model.RefreshToken, next string, exp time.Time, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return old, "", time.Time{}, fmt.Errorf("begin rotation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at, revoked
		FROM refresh_tokens WHERE token_hash = ? FOR UPDATE`,
		utils.HashRefreshRaw(raw)).
		Scan(&old.ID, &old.AccountID, &old.TokenHash, &old.ExpiresAt, &old.CreatedAt, &old.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = model.ErrNotFound
			return old, "", time.Time{}, err
		}
		return old, "", time.Time{}, fmt.Errorf("lock refresh token: %w", err)
	}
	now := r.now()
	if !old.Usable(now) {
		err = model.ErrNotFound
		return old, "", time.Time{}, err
	}

	if _, err = tx.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = TRUE WHERE id = ?", old.ID); err != nil {
		return old, "", time.Time{}, fmt.Errorf("revoke rotated token: %w", err)
	}

	next, err = utils.NewRefreshSecret()
	if err != nil {
		return old, "", time.Time{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	exp = now.Add(r.TTL)
	if err = insertToken(ctx, tx, ulid.Make().String(), old.AccountID, utils.HashRefreshRaw(next), exp, now, &old.ID); err != nil {
		return old, "", time.Time{}, err
	}

	if err = tx.Commit(); err != nil {
		return old, "", time.Time{}, fmt.Errorf("commit rotation: %w", err)
	}
	old.Revoked = true
	return old, next, exp, nil
}

// SweepExpired deletes expired or revoked records in bounded batches and
// returns the number of rows removed.  Expired rows are already unusable,
// so a failed sweep only delays housekeeping.
func (r *TokenRepo) SweepExpired(ctx context.Context) (int64, error) {
	var total int64
	now := r.now()
	for {
		res, err := r.DB.ExecContext(ctx,
			"DELETE FROM refresh_tokens WHERE expires_at <= ? OR revoked = TRUE LIMIT ?",
			now, sweepBatch)
		if err != nil {
			return total, fmt.Errorf("sweep refresh tokens: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("sweep refresh tokens: %w", err)
		}
		total += n
		if n < sweepBatch {
			return total, nil
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, id, accountID, hash string, exp, now time.Time, rotatedFrom *string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked, rotated_from)
		VALUES (?,?,?,?,?,FALSE,?)`,
		id, accountID, hash, exp, now, rotatedFrom)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}
