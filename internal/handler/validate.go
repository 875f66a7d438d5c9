package handler

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/utils"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
)

const (
	minPasswordLen = 8
	maxNameLen     = 100
	maxPhoneLen    = 20
	maxBadgeLen    = 50
)

// fieldErrors collects per-field problems in input order.
type fieldErrors []model.FieldError

func (f *fieldErrors) add(field, msg string) {
	*f = append(*f, model.FieldError{Field: field, Message: msg})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &model.Error{Kind: model.KindValidation, Message: "Validation failed", Details: f}
}

func (f *fieldErrors) email(v string) {
	switch {
	case strings.TrimSpace(v) == "":
		f.add("email", "Email is required")
	case !emailPattern.MatchString(strings.TrimSpace(v)):
		f.add("email", "Please provide a valid email address")
	}
}

// password enforces the policy: 8 characters to 72 bytes with an upper,
// a lower and a digit.
func (f *fieldErrors) password(field, label, v string) {
	if v == "" {
		f.add(field, label+" is required")
		return
	}
	if len([]rune(v)) < minPasswordLen {
		f.add(field, label+" must be at least 8 characters long")
		return
	}
	if len(v) > utils.MaxPasswordBytes {
		f.add(field, label+" must be at most 72 bytes long")
		return
	}
	var upper, lower, digit bool
	for _, r := range v {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		f.add(field, label+" must contain at least one uppercase letter, one lowercase letter, and one number")
	}
}

func (f *fieldErrors) maxLen(field, v string, n int) {
	if len([]rune(v)) > n {
		f.add(field, field+" must be at most "+strconv.Itoa(n)+" characters")
	}
}

func (f *fieldErrors) phone(v string) {
	if v == "" {
		return
	}
	if !phonePattern.MatchString(v) || len(v) > maxPhoneLen {
		f.add("phone", "Please provide a valid phone number")
	}
}

func (f *fieldErrors) profile(p profileFields) {
	if p.FirstName != nil {
		f.maxLen("firstName", *p.FirstName, maxNameLen)
	}
	if p.LastName != nil {
		f.maxLen("lastName", *p.LastName, maxNameLen)
	}
	if p.Phone != nil {
		f.phone(*p.Phone)
	}
	if p.BadgeNumber != nil {
		f.maxLen("badgeNumber", *p.BadgeNumber, maxBadgeLen)
	}
	if p.Department != nil {
		f.maxLen("department", *p.Department, maxNameLen)
	}
}
