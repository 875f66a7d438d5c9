// Package queue carries account events over RabbitMQ: a buffered
// publisher used by the session service and a consumer that appends
// them to an audit log.
package queue

import (
	"fmt"
	"strings"
	"time"
)

// EventType names an account event.  The value doubles as the audit
// action recorded by the consumer.
type EventType string

const (
	EventAccountRegistered  EventType = "account.registered"
	EventPasswordChanged    EventType = "password.changed"
	EventLogoutAll          EventType = "session.logout_all"
	EventAccountDeactivated EventType = "account.deactivated"
)

// AccountEvent is published after a state change that matters for
// auditing.  It never carries passwords, hashes or token material.
type AccountEvent struct {
	Type          EventType `json:"type"`
	AccountID     string    `json:"account_id"`
	Email         string    `json:"email,omitempty"`
	Role          string    `json:"role,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	RevokedTokens int64     `json:"revoked_tokens,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AuditLine renders ev as a single log line.
func (ev AccountEvent) AuditLine() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | account_id=%s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.AccountID)
	if ev.Email != "" {
		fmt.Fprintf(&b, " | email=%q", ev.Email)
	}
	if ev.Role != "" {
		fmt.Fprintf(&b, " | role=%s", ev.Role)
	}
	if ev.ActorID != "" && ev.ActorID != ev.AccountID {
		fmt.Fprintf(&b, " | actor_id=%s", ev.ActorID)
	}
	if ev.RevokedTokens > 0 {
		fmt.Fprintf(&b, " | revoked_tokens=%d", ev.RevokedTokens)
	}
	b.WriteByte('\n')
	return b.String()
}
