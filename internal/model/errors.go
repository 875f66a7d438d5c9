package model

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the auth core can report.  Transports map
// kinds to status codes; nothing above the repository layer matches on
// message text.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicateEmail
	KindInvalidCredentials
	KindInvalidToken
	KindInvalidRefreshToken
	KindAccountUnavailable
	KindUnauthenticated
	KindForbidden
	KindNotFound
)

var kindNames = [...]string{
	KindInternal:            "internal",
	KindValidation:          "validation_error",
	KindDuplicateEmail:      "duplicate_email",
	KindInvalidCredentials:  "invalid_credentials",
	KindInvalidToken:        "invalid_token",
	KindInvalidRefreshToken: "invalid_refresh_token",
	KindAccountUnavailable:  "account_unavailable",
	KindUnauthenticated:     "unauthenticated",
	KindForbidden:           "forbidden",
	KindNotFound:            "not_found",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the error type returned by the session service.  Message is
// safe to show to clients; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error
}

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel values, one per kind.
var (
	ErrInternal            = &Error{Kind: KindInternal, Message: "internal server error"}
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrDuplicateEmail      = &Error{Kind: KindDuplicateEmail, Message: "user with this email already exists"}
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrInvalidToken        = &Error{Kind: KindInvalidToken, Message: "invalid access token"}
	ErrInvalidRefreshToken = &Error{Kind: KindInvalidRefreshToken, Message: "invalid refresh token"}
	ErrAccountUnavailable  = &Error{Kind: KindAccountUnavailable, Message: "user not found or inactive"}
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated, Message: "invalid or expired token"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "insufficient permissions"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
)

// NewError builds an error of kind k with a client-safe message.
func NewError(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps cause as an internal error.  The cause is kept for logs
// and never rendered to clients outside development.
func Internal(op string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: op, Err: cause}
}

// KindOf reports the kind of err.  Errors that are not *Error are
// internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
