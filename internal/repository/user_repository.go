// Package repository is the MySQL persistence layer for accounts and
// refresh tokens.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/traafik/auth-svc/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique-key violation.
const mysqlDuplicateEntry = 1062

const accountColumns = `id, email, password_hash, role, first_name, last_name, phone,
badge_number, department, is_active, email_verified, created_at, updated_at`

// AccountRepo persists accounts in the `users` table.  Lookups only see
// active rows; the unique email constraint covers every row, so a
// deactivated account keeps its email reserved.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// Create inserts a. A unique-key violation on email maps to
// model.ErrDuplicateEmail.
func (r *AccountRepo) Create(ctx context.Context, a model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, first_name, last_name, phone,
		badge_number, department, is_active, email_verified, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Email, a.PasswordHash, string(a.Role),
		nullable(a.Profile.FirstName), nullable(a.Profile.LastName), nullable(a.Profile.Phone),
		nullable(a.Profile.BadgeNumber), nullable(a.Profile.Department),
		a.IsActive, a.EmailVerified, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return model.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByEmail fetches an active account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM users WHERE email = ? AND is_active = TRUE LIMIT 1",
		model.NormalizeEmail(email))
	return scanAccount(row)
}

// GetByID fetches an active account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM users WHERE id = ? AND is_active = TRUE LIMIT 1",
		id)
	return scanAccount(row)
}

// ListByRole returns the active accounts holding role, newest first.
func (r *AccountRepo) ListByRole(ctx context.Context, role model.Role) ([]model.Account, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM users WHERE role = ? AND is_active = TRUE ORDER BY created_at DESC",
		string(role))
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return accounts, nil
}

// Update applies the non-nil fields of upd to an active account.  The
// column set is fixed by model.AccountUpdate; nothing else is writable
// through this path.
func (r *AccountRepo) Update(ctx context.Context, id string, upd model.AccountUpdate) error {
	if upd.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, nullable(*v))
		}
	}
	add("first_name", upd.FirstName)
	add("last_name", upd.LastName)
	add("phone", upd.Phone)
	add("badge_number", upd.BadgeNumber)
	add("department", upd.Department)
	args = append(args, id)

	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+", updated_at = UTC_TIMESTAMP(6) WHERE id = ? AND is_active = TRUE",
		args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res)
}

// UpdatePassword replaces the password hash of an active account.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ? AND is_active = TRUE",
		hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(res)
}

// Deactivate soft-deletes an account.
func (r *AccountRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active = FALSE, updated_at = UTC_TIMESTAMP(6) WHERE id = ? AND is_active = TRUE",
		id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (model.Account, error) {
	var (
		a                                     model.Account
		role                                  string
		first, last, phone, badge, department sql.NullString
	)
	err := s.Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &first, &last, &phone,
		&badge, &department, &a.IsActive, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("scan user: %w", err)
	}
	a.Role = model.Role(role)
	a.Profile = model.Profile{
		FirstName:   first.String,
		LastName:    last.String,
		Phone:       phone.String,
		BadgeNumber: badge.String,
		Department:  department.String,
	}
	return a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
