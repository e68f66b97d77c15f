package authsvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
	authsvc "github.com/edecs/academy/services/auth"
	testutil "github.com/edecs/academy/tests"
)

func TestLocalProvider_Sessions(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	validate, _ := testutil.NewValidator()
	ids := identity.NewService(store, validate, testutil.NewLogger())
	provider := authsvc.NewLocalProvider(ids)

	stop := ids.Watch(provider)
	defer stop()

	testutil.CreatePrincipal(t, store, "u@test.io", "U", identity.RoleUser, nil)

	var events []identity.AuthEvent
	unsub := provider.OnAuthStateChanged(func(evt identity.AuthEvent) { events = append(events, evt) })
	defer unsub()

	_, err := provider.SignIn(ctx, "u@test.io", "nope")
	assert.Equal(t, identity.ErrInvalidCredentials, errors.Cause(err))
	_, ok := ids.Session("u@test.io")
	assert.False(t, ok)

	usr, err := provider.SignIn(ctx, "U@test.io", testutil.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "u@test.io", usr.Email)

	sess, ok := ids.Session("u@test.io")
	require.True(t, ok)
	assert.Equal(t, identity.RoleUser, sess.Grant.Role)

	// a grant change is picked up without signing in again
	require.NoError(t, store.Set(ctx, core.GrantPath("u@test.io"), identity.RoleGrant{
		Role:    identity.RoleAdmin,
		Courses: map[string]identity.CourseGrant{},
	}))
	assert.Eventually(t, func() bool {
		sess, ok := ids.Session("u@test.io")
		return ok && sess.Grant.Role == identity.RoleAdmin
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, provider.SignOut(ctx, "u@test.io"))
	_, ok = ids.Session("u@test.io")
	assert.False(t, ok)

	assert.Equal(t, core.ErrAuthRequired, provider.SignOut(ctx, " "))

	if assert.Len(t, events, 2) {
		assert.True(t, events[0].SignedIn)
		assert.False(t, events[1].SignedIn)
	}
}

func TestLocalProvider_Unsubscribe(t *testing.T) {
	store := testutil.NewStore()
	validate, _ := testutil.NewValidator()
	provider := authsvc.NewLocalProvider(identity.NewService(store, validate, testutil.NewLogger()))

	var calls int
	unsub := provider.OnAuthStateChanged(func(identity.AuthEvent) { calls++ })
	require.NoError(t, provider.SignOut(context.Background(), "u@test.io"))
	unsub()
	require.NoError(t, provider.SignOut(context.Background(), "u@test.io"))

	assert.Equal(t, 1, calls)
}
