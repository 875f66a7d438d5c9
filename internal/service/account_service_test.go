package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traafik/auth-svc/internal/model"
	"github.com/traafik/auth-svc/internal/queue"
)

func strPtr(s string) *string { return &s }

func TestProfile(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@test.com", model.RoleUser)

	acc, err := f.svc.Profile(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "a@test.com", acc.Email)

	_, err = f.svc.Profile(context.Background(), "acc-404")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	f.register(t, "officer@test.com", model.RoleOfficer)

	acc, err := f.svc.UpdateProfile(context.Background(), "acc-1", model.AccountUpdate{
		FirstName:  strPtr("Grace"),
		Department: strPtr("Patrol"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Grace", acc.Profile.FirstName)
	assert.Equal(t, "Patrol", acc.Profile.Department)
	assert.Equal(t, "B-1", acc.Profile.BadgeNumber)

	stored, err := f.svc.Profile(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, acc.Profile, stored.Profile)
}

func TestUpdateProfile_RoleRules(t *testing.T) {
	f := newFixture(t)
	f.register(t, "officer@test.com", model.RoleOfficer)
	f.register(t, "user@test.com", model.RoleUser)

	_, err := f.svc.UpdateProfile(context.Background(), "acc-1", model.AccountUpdate{BadgeNumber: strPtr("")})
	assert.Equal(t, model.KindValidation, model.KindOf(err), "staff cannot clear the badge")

	_, err = f.svc.UpdateProfile(context.Background(), "acc-2", model.AccountUpdate{BadgeNumber: strPtr("B-7")})
	assert.Equal(t, model.KindValidation, model.KindOf(err), "users cannot gain a badge")

	acc, err := f.svc.UpdateProfile(context.Background(), "acc-2", model.AccountUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "user@test.com", acc.Email)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	f.register(t, "admin@test.com", model.RoleAdmin)
	f.clock.Advance(time.Second)
	f.register(t, "u1@test.com", model.RoleUser)
	f.clock.Advance(time.Second)
	f.register(t, "o1@test.com", model.RoleOfficer)
	f.clock.Advance(time.Second)
	f.register(t, "u2@test.com", model.RoleUser)

	all, err := f.svc.ListUsers(context.Background(), "")
	require.NoError(t, err)
	var emails []string
	for _, a := range all {
		emails = append(emails, a.Email)
	}
	assert.Equal(t, []string{"u2@test.com", "u1@test.com", "o1@test.com", "admin@test.com"}, emails)

	officers, err := f.svc.ListUsers(context.Background(), "OFFICER")
	require.NoError(t, err)
	require.Len(t, officers, 1)
	assert.Equal(t, "o1@test.com", officers[0].Email)

	_, err = f.svc.ListUsers(context.Background(), "superuser")
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t)
	admin := f.register(t, "admin@test.com", model.RoleAdmin)
	user := f.register(t, "a@test.com", model.RoleUser)

	require.NoError(t, f.svc.Deactivate(context.Background(), admin.Account.ID, user.Account.ID))
	assert.Zero(t, f.tokens.activeFor(user.Account.ID))

	_, err := f.svc.Refresh(context.Background(), user.Tokens.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)

	err = f.svc.Deactivate(context.Background(), admin.Account.ID, user.Account.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = f.svc.Deactivate(context.Background(), admin.Account.ID, admin.Account.ID)
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	f.events.mu.Lock()
	last := f.events.events[len(f.events.events)-1]
	f.events.mu.Unlock()
	assert.Equal(t, queue.EventAccountDeactivated, last.Type)
	assert.Equal(t, admin.Account.ID, last.ActorID)
	assert.Equal(t, "a@test.com", last.Email)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "a@test.com", model.RoleUser)
	require.NoError(t, f.svc.Logout(context.Background(), reg.Tokens.RefreshToken))
	_, err := f.svc.Login(context.Background(), "a@test.com", "Abcd1234")
	require.NoError(t, err)

	n, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only the revoked row goes")

	f.clock.Advance(8 * 24 * time.Hour)
	n, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
