package identity_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	testutil "github.com/edecs/academy/tests"
)

type fixture struct {
	store core.DataStore
	svc   *identity.Service
}

func setup(t *testing.T) fixture {
	store := testutil.NewStore()
	validate, _ := testutil.NewValidator()
	return fixture{store: store, svc: identity.NewService(store, validate, testutil.NewLogger())}
}

func isValidationErr(err error) bool {
	_, ok := errors.Cause(err).(*core.ValidationError)
	return ok
}

func TestService_Resolve(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "admin@test.io", "Admin", identity.RoleAdmin, nil)

	t.Run("no email", func(t *testing.T) {
		_, err := f.svc.Resolve(ctx, " ")
		assert.Equal(t, core.ErrAuthRequired, err)
	})

	t.Run("no record", func(t *testing.T) {
		grant, err := f.svc.Resolve(ctx, "Nobody@Test.io")
		require.NoError(t, err)
		assert.Equal(t, identity.DefaultGrant("nobody@test.io"), grant)
	})

	t.Run("stored", func(t *testing.T) {
		grant, err := f.svc.Resolve(ctx, "ADMIN@test.io")
		require.NoError(t, err)
		assert.Equal(t, identity.RoleAdmin, grant.Role)
		assert.Equal(t, "admin@test.io", grant.Email)
	})

	t.Run("malformed", func(t *testing.T) {
		require.NoError(t, f.store.Set(ctx, core.GrantPath("bad@test.io"), json.RawMessage(`{"role": 42}`)))
		_, err := f.svc.Resolve(ctx, "bad@test.io")
		assert.True(t, isValidationErr(err), "got %v", err)
	})

	t.Run("store down", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.svc.Resolve(cctx, "admin@test.io")
		assert.True(t, core.IsBackendUnavailable(err), "got %v", err)
	})
}

func TestService_Authorize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "u@test.io", "U", identity.RoleUser, testutil.SubCourseAccess("c1", "s1"))

	_, err := f.svc.Authorize(ctx, "u@test.io", "c1", "s1")
	assert.NoError(t, err)
	_, err = f.svc.Authorize(ctx, "u@test.io", "c1", "s2")
	assert.Equal(t, core.ErrAccessDenied, errors.Cause(err))
	_, err = f.svc.Authorize(ctx, "", "c1", "s1")
	assert.Equal(t, core.ErrAuthRequired, errors.Cause(err))

	// revocation is seen by the very next call
	require.NoError(t, f.store.Set(ctx, core.GrantPath("u@test.io"), identity.DefaultGrant("u@test.io")))
	_, err = f.svc.Authorize(ctx, "u@test.io", "c1", "s1")
	assert.Equal(t, core.ErrAccessDenied, errors.Cause(err))
}

func TestService_RequireAdmin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "admin@test.io", "Admin", identity.RoleAdmin, nil)
	testutil.CreatePrincipal(t, f.store, "u@test.io", "U", identity.RoleUser, nil)
	testutil.CreatePrincipal(t, f.store, "off@test.io", "Off", identity.RoleDisabled, nil)

	tests := []struct {
		email   string
		wantErr error
	}{
		{email: "admin@test.io"},
		{email: "u@test.io", wantErr: core.ErrAccessDenied},
		{email: "off@test.io", wantErr: core.ErrAccessDenied},
		{email: "", wantErr: core.ErrAuthRequired},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			_, err := f.svc.RequireAdmin(ctx, tt.email)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}

	_, err := f.svc.RequireActive(ctx, "off@test.io")
	assert.Equal(t, core.ErrAccessDenied, errors.Cause(err))
	_, err = f.svc.RequireActive(ctx, "u@test.io")
	assert.NoError(t, err)
}

func TestService_SetAccess(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "admin@test.io", "Admin", identity.RoleAdmin, nil)
	testutil.CreatePrincipal(t, f.store, "u@test.io", "U", identity.RoleUser, nil)
	testutil.CreateCourse(t, f.store, "c1", "Safety", course.SubCourse{ID: "s1", Name: "Intro"}, course.SubCourse{ID: "s2", Name: "Fire"})

	t.Run("not admin", func(t *testing.T) {
		_, err := f.svc.SetAccess(ctx, "u@test.io", "u@test.io", "c1", "", true)
		assert.Equal(t, core.ErrAccessDenied, errors.Cause(err))
	})

	t.Run("unknown course", func(t *testing.T) {
		_, err := f.svc.SetAccess(ctx, "admin@test.io", "u@test.io", "c9", "", true)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("unknown sub-course", func(t *testing.T) {
		_, err := f.svc.SetAccess(ctx, "admin@test.io", "u@test.io", "c1", "s9", true)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("sub-course", func(t *testing.T) {
		grant, err := f.svc.SetAccess(ctx, "admin@test.io", "u@test.io", "c1", "s1", true)
		require.NoError(t, err)
		assert.True(t, identity.CanAccess(grant, "c1", "s1"))
		assert.False(t, identity.CanAccess(grant, "c1", "s2"))

		stored, err := f.svc.Resolve(ctx, "u@test.io")
		require.NoError(t, err)
		assert.Equal(t, grant, stored)
	})

	t.Run("course replaces sub-course entries", func(t *testing.T) {
		grant, err := f.svc.SetAccess(ctx, "admin@test.io", "u@test.io", "c1", "", true)
		require.NoError(t, err)
		assert.Equal(t, identity.CourseGrant{HasAccess: true, SubCourses: map[string]bool{}}, grant.Courses["c1"])
		assert.True(t, identity.CanAccess(grant, "c1", "s2"))
	})

	t.Run("revoke course", func(t *testing.T) {
		grant, err := f.svc.SetAccess(ctx, "admin@test.io", "u@test.io", "c1", "", false)
		require.NoError(t, err)
		assert.NotContains(t, grant.Courses, "c1")
		assert.False(t, identity.CanAccess(grant, "c1", ""))
	})
}

func newPrincipal(email, role string) identity.NewPrincipal {
	return identity.NewPrincipal{
		Email:           email,
		Name:            "Jane Roe",
		Department:      "Ops",
		Role:            role,
		Password:        testutil.DefaultPassword,
		PasswordConfirm: testutil.DefaultPassword,
	}
}

func TestService_Register(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// an administrator assigned a course before the principal registered
	require.NoError(t, f.store.Set(ctx, core.GrantPath("new@test.io"), identity.RoleGrant{
		Role:    identity.RoleUser,
		Courses: testutil.CourseAccess("c1"),
	}))

	np := newPrincipal(" New@Test.io ", "SuperAdmin")
	usr, err := f.svc.Register(ctx, np)
	require.NoError(t, err)
	assert.Equal(t, "new@test.io", usr.Email)
	assert.Equal(t, identity.RoleUser, usr.Role)

	grant, err := f.svc.Resolve(ctx, "new@test.io")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleUser, grant.Role)
	assert.True(t, identity.CanAccess(grant, "c1", ""))

	_, err = f.svc.Register(ctx, np)
	assert.True(t, isValidationErr(err), "got %v", err)

	got, err := f.svc.Authenticate(ctx, "new@test.io", testutil.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, usr.Email, got.Email)
}

func TestService_CreatePrincipal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "admin@test.io", "Admin", identity.RoleAdmin, nil)
	testutil.CreatePrincipal(t, f.store, "u@test.io", "U", identity.RoleUser, nil)

	tests := []struct {
		name     string
		actor    string
		np       identity.NewPrincipal
		wantRole identity.Role
		wantErr  func(error) bool
	}{
		{name: "not admin", actor: "u@test.io", np: newPrincipal("a@test.io", ""), wantErr: func(err error) bool { return errors.Cause(err) == core.ErrAccessDenied }},
		{name: "role above actor", actor: "admin@test.io", np: newPrincipal("b@test.io", "SuperAdmin"), wantErr: isValidationErr},
		{name: "unknown role", actor: "admin@test.io", np: newPrincipal("c@test.io", "Owner"), wantErr: func(err error) bool { return err != nil }},
		{name: "default role", actor: "admin@test.io", np: newPrincipal("d@test.io", ""), wantRole: identity.RoleUser},
		{name: "admin role", actor: "admin@test.io", np: newPrincipal("e@test.io", "administrator"), wantRole: identity.RoleAdmin},
		{name: "existing email", actor: "admin@test.io", np: newPrincipal("U@test.io", ""), wantErr: isValidationErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := f.svc.CreatePrincipal(ctx, tt.actor, tt.np)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, usr.Role)
			grant, err := f.svc.Resolve(ctx, usr.Email)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, grant.Role)
		})
	}
}

func TestService_SetRole(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "root@test.io", "Root", identity.RoleSuperAdmin, nil)
	testutil.CreatePrincipal(t, f.store, "admin@test.io", "Admin", identity.RoleAdmin, nil)
	testutil.CreatePrincipal(t, f.store, "u@test.io", "U", identity.RoleUser, testutil.CourseAccess("c1"))

	tests := []struct {
		name    string
		actor   string
		email   string
		role    identity.Role
		wantErr func(error) bool
	}{
		{name: "invalid role", actor: "admin@test.io", email: "u@test.io", role: "Owner", wantErr: isValidationErr},
		{name: "not admin", actor: "u@test.io", email: "admin@test.io", role: identity.RoleUser, wantErr: func(err error) bool { return errors.Cause(err) == core.ErrAccessDenied }},
		{name: "own role", actor: "admin@test.io", email: "admin@test.io", role: identity.RoleUser, wantErr: isValidationErr},
		{name: "outranked target", actor: "admin@test.io", email: "root@test.io", role: identity.RoleUser, wantErr: isValidationErr},
		{name: "role above actor", actor: "admin@test.io", email: "u@test.io", role: identity.RoleSuperAdmin, wantErr: isValidationErr},
		{name: "unknown principal", actor: "admin@test.io", email: "ghost@test.io", role: identity.RoleUser, wantErr: core.IsNotFound},
		{name: "promote", actor: "admin@test.io", email: "u@test.io", role: identity.RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := f.svc.SetRole(ctx, tt.actor, tt.email, tt.role)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, usr.Role)

			grant, err := f.svc.Resolve(ctx, tt.email)
			require.NoError(t, err)
			assert.Equal(t, tt.role, grant.Role)
			assert.Contains(t, grant.Courses, "c1")
		})
	}

	t.Run("disable", func(t *testing.T) {
		usr, err := f.svc.Disable(ctx, "root@test.io", "admin@test.io")
		require.NoError(t, err)
		assert.Equal(t, identity.RoleDisabled, usr.Role)

		_, err = f.svc.Authenticate(ctx, "admin@test.io", testutil.DefaultPassword)
		assert.Equal(t, identity.ErrAccountDisabled, err)
		_, err = f.svc.RequireAdmin(ctx, "admin@test.io")
		assert.Equal(t, core.ErrAccessDenied, errors.Cause(err))
	})
}

func TestService_Authenticate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "u@test.io", "U", identity.RoleUser, nil)

	_, err := f.svc.Authenticate(ctx, "u@test.io", "wrong")
	assert.Equal(t, identity.ErrInvalidCredentials, err)
	_, err = f.svc.Authenticate(ctx, "ghost@test.io", testutil.DefaultPassword)
	assert.Equal(t, identity.ErrInvalidCredentials, err)

	usr, err := f.svc.Authenticate(ctx, " U@test.io", testutil.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "u@test.io", usr.Email)

	var cred identity.Credential
	require.NoError(t, f.store.Get(ctx, core.CredentialPath("u@test.io"), &cred))
	assert.NotNil(t, cred.LastLogin)
}

func TestService_ResetPassword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "u@test.io", "U", identity.RoleUser, nil)

	newPwd := "N3w.Secret-Value"
	err := f.svc.ResetPassword(ctx, identity.SetPassword{Email: "ghost@test.io", Password: newPwd, PasswordConfirm: newPwd})
	assert.True(t, core.IsNotFound(err))

	err = f.svc.ResetPassword(ctx, identity.SetPassword{Email: "u@test.io", Password: newPwd, PasswordConfirm: "other"})
	assert.Error(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, identity.SetPassword{Email: "u@test.io", Password: newPwd, PasswordConfirm: newPwd}))
	_, err = f.svc.Authenticate(ctx, "u@test.io", testutil.DefaultPassword)
	assert.Equal(t, identity.ErrInvalidCredentials, err)
	_, err = f.svc.Authenticate(ctx, "u@test.io", newPwd)
	assert.NoError(t, err)
}

func TestService_Bootstrap(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr, err := f.svc.Bootstrap(ctx, newPrincipal("root@test.io", "Super Admin"))
	require.NoError(t, err)
	assert.Equal(t, identity.RoleSuperAdmin, usr.Role)

	// running it again updates the principal in place
	np := newPrincipal("root@test.io", "Admin")
	np.Name = "Root"
	usr2, err := f.svc.Bootstrap(ctx, np)
	require.NoError(t, err)
	assert.Equal(t, "Root", usr2.Name)
	assert.Equal(t, identity.RoleAdmin, usr2.Role)
	assert.True(t, usr.CreatedAt.Equal(usr2.CreatedAt))
}

func TestService_ListGrantsAndCleanup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreatePrincipal(t, f.store, "a@test.io", "A", identity.RoleUser, map[string]identity.CourseGrant{
		"c1": {HasAccess: true, SubCourses: map[string]bool{"s1": false}},
		"c2": {HasAccess: true, SubCourses: map[string]bool{}},
	})
	testutil.CreatePrincipal(t, f.store, "b@test.io", "B", identity.RoleUser, testutil.CourseAccess("c2"))

	principals, err := f.svc.ListPrincipals(ctx)
	require.NoError(t, err)
	if assert.Len(t, principals, 2) {
		assert.Equal(t, "a@test.io", principals[0].Email)
	}

	grants, err := f.svc.ListGrants(ctx)
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	writes, err := f.svc.GrantCleanup(ctx, "c1", "s1")
	require.NoError(t, err)
	if assert.Len(t, writes, 1) {
		g := writes[core.GrantPath("a@test.io")].(identity.RoleGrant)
		assert.Empty(t, g.Courses["c1"].SubCourses)
		assert.True(t, g.Courses["c1"].HasAccess)
	}

	writes, err = f.svc.GrantCleanup(ctx, "c2", "")
	require.NoError(t, err)
	assert.Len(t, writes, 2)

	// the stored grants are untouched until the writes are applied
	grants, err = f.svc.ListGrants(ctx)
	require.NoError(t, err)
	assert.Contains(t, grants["a@test.io"].Courses["c1"].SubCourses, "s1")
}

func TestService_MigrateRoles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.store.Update(ctx, map[string]interface{}{
		core.PrincipalPath("a@test.io"): json.RawMessage(`{"name": "A", "role": "administrator"}`),
		core.GrantPath("a@test.io"):     json.RawMessage(`{"role": "administrator", "courses": {}}`),
		core.PrincipalPath("b@test.io"): json.RawMessage(`{"name": "B", "role": "User"}`),
		core.GrantPath("b@test.io"):     json.RawMessage(`{"role": "User"}`),
		core.GrantPath("c@test.io"):     json.RawMessage(`{"role": "Owner"}`),
	}))

	n, err := f.svc.MigrateRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var doc map[string]interface{}
	require.NoError(t, f.store.Get(ctx, core.GrantPath("a@test.io"), &doc))
	assert.Equal(t, "Admin", doc["role"])
	require.NoError(t, f.store.Get(ctx, core.GrantPath("c@test.io"), &doc))
	assert.Equal(t, "Owner", doc["role"])

	n, err = f.svc.MigrateRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
