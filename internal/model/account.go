package model

import (
	"strings"
	"time"
)

// Role is the authorization role carried by an account and embedded in
// its access tokens.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleOfficer Role = "officer"
	RoleUser    Role = "user"
)

// Roles lists every known role in the order account listings group them.
var Roles = []Role{RoleUser, RoleOfficer, RoleAdmin}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleOfficer, RoleUser:
		return r, true
	}
	return "", false
}

// Staff reports whether the role belongs to enforcement staff.  Staff
// accounts must carry a badge number and a department.
func (r Role) Staff() bool { return r == RoleAdmin || r == RoleOfficer }

// Profile holds the descriptive account fields.  Empty strings mean the
// value is not set and are stored as NULL.
type Profile struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	BadgeNumber string `json:"badgeNumber,omitempty"`
	Department  string `json:"department,omitempty"`
}

// Account mirrors the `users` table.  PasswordHash never leaves the
// service; handlers render accounts through their own response type.
//
// Fields:
//
//	ID            – opaque UUID primary key.
//	Email         – lowercase-normalized, unique across all rows.
//	PasswordHash  – bcrypt digest.
//	Role          – admin, officer or user.
//	IsActive      – false once the account is soft-deleted.
//	EmailVerified – set by the verification flow.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          Role
	Profile       Profile
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is the resolved caller attached to a request by the
// authorization gate, and the claim set carried by access tokens.
type Identity struct {
	AccountID string
	Email     string
	Role      Role
}

// Identity returns the claim set for a.
func (a Account) Identity() Identity {
	return Identity{AccountID: a.ID, Email: a.Email, Role: a.Role}
}

// AccountUpdate enumerates the profile columns that may change after
// registration.  A nil field is left untouched.
type AccountUpdate struct {
	FirstName   *string
	LastName    *string
	Phone       *string
	BadgeNumber *string
	Department  *string
}

// Empty reports whether the update carries no changes.
func (u AccountUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil &&
		u.BadgeNumber == nil && u.Department == nil
}

// Apply returns p with the non-nil fields of u applied.
func (u AccountUpdate) Apply(p Profile) Profile {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.BadgeNumber != nil {
		p.BadgeNumber = *u.BadgeNumber
	}
	if u.Department != nil {
		p.Department = *u.Department
	}
	return p
}

// NormalizeEmail lowercases and trims an email address for storage and
// lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckRole enforces the role-dependent profile rules: staff accounts
// need a badge number and a department, plain users may not carry a
// badge number.
func (p Profile) CheckRole(r Role) error {
	var details []FieldError
	if r.Staff() {
		if p.BadgeNumber == "" {
			details = append(details, FieldError{Field: "badgeNumber", Message: "Badge number is required for admin and officer roles"})
		}
		if p.Department == "" {
			details = append(details, FieldError{Field: "department", Message: "Department is required for admin and officer roles"})
		}
	} else if p.BadgeNumber != "" {
		details = append(details, FieldError{Field: "badgeNumber", Message: "Badge number is not allowed for user role"})
	}
	if len(details) > 0 {
		return &Error{Kind: KindValidation, Message: "validation failed", Details: details}
	}
	return nil
}
