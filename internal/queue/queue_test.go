package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var occurred = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func TestAccountEvent_AuditLine(t *testing.T) {
	ev := AccountEvent{
		Type:          EventLogoutAll,
		AccountID:     "acc-1",
		ActorID:       "acc-1",
		RevokedTokens: 3,
		OccurredAt:    occurred,
	}
	assert.Equal(t, "[2026-03-01T09:30:00Z] session.logout_all | account_id=acc-1 | revoked_tokens=3\n", ev.AuditLine())

	ev = AccountEvent{
		Type:       EventAccountDeactivated,
		AccountID:  "acc-2",
		Email:      "a@test.com",
		Role:       "officer",
		ActorID:    "admin-1",
		OccurredAt: occurred,
	}
	assert.Equal(t, `[2026-03-01T09:30:00Z] account.deactivated | account_id=acc-2 | email="a@test.com" | role=officer | actor_id=admin-1`+"\n", ev.AuditLine())
}

func TestAuditConsumer_Handle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	c := &AuditConsumer{LogPath: path, Log: quietLogger()}

	body, err := json.Marshal(AccountEvent{Type: EventAccountRegistered, AccountID: "acc-1", Role: "user", OccurredAt: occurred})
	require.NoError(t, err)
	require.NoError(t, c.handle(body))
	require.NoError(t, c.handle(body))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := "[2026-03-01T09:30:00Z] account.registered | account_id=acc-1 | role=user\n"
	assert.Equal(t, line+line, string(data))
}

func TestAuditConsumer_HandleRejectsGarbage(t *testing.T) {
	c := &AuditConsumer{LogPath: filepath.Join(t.TempDir(), "audit.log"), Log: quietLogger()}

	assert.Error(t, c.handle([]byte("{not json")))
	assert.Error(t, c.handle([]byte(`{"type":"account.registered"}`)))
	_, err := os.Stat(c.LogPath)
	assert.True(t, os.IsNotExist(err))
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []amqp.Publishing
	failNext  int
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("channel closed")
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestPublisher_DeliversEvents(t *testing.T) {
	ch := &fakeChannel{failNext: 1}
	dials := 0
	p := NewPublisher("amqp://test", "", quietLogger(), nil)
	p.dial = func(string) (channel, func() error, error) {
		dials++
		return ch, func() error { return nil }, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	require.NoError(t, p.Publish(ctx, AccountEvent{Type: EventPasswordChanged, AccountID: "acc-1", OccurredAt: occurred}))
	require.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 2, dials, "a failed publish re-dials once")
	assert.Equal(t, []string{DefaultQueue, DefaultQueue}, ch.declared)

	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "password.changed", msg.Type)
	var got AccountEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "acc-1", got.AccountID)
}

func TestPublisher_BufferFull(t *testing.T) {
	p := NewPublisher("amqp://test", "q", quietLogger(), nil)
	for range publishBuffer {
		require.NoError(t, p.Publish(context.Background(), AccountEvent{Type: EventLogoutAll}))
	}
	assert.ErrorIs(t, p.Publish(context.Background(), AccountEvent{Type: EventLogoutAll}), ErrBufferFull)
}
