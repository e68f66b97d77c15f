package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

func Test_newEntry(t *testing.T) {
	errBoom := errors.New("boom")
	alice := identity.Principal{Email: "alice@test.io", Name: "Alice", Role: identity.RoleUser}
	extra := map[string]interface{}{"count": 2}

	tests := []struct {
		name       string
		args       []interface{}
		wantActor  string
		wantRole   identity.Role
		wantExtras []interface{}
		wantString string
	}{
		{name: "no actor", args: []interface{}{errBoom}, wantExtras: []interface{}{errBoom}, wantString: "msg"},
		{
			name:       "principal",
			args:       []interface{}{errBoom, alice, extra},
			wantActor:  alice.Email,
			wantRole:   identity.RoleUser,
			wantExtras: []interface{}{errBoom, extra},
			wantString: "msg actor=alice@test.io role=User",
		},
		{
			name:       "grant role wins",
			args:       []interface{}{alice, identity.RoleGrant{Email: alice.Email, Role: identity.RoleAdmin}},
			wantActor:  alice.Email,
			wantRole:   identity.RoleAdmin,
			wantExtras: []interface{}{},
			wantString: "msg actor=alice@test.io role=Admin",
		},
		{
			name:       "first principal is the actor",
			args:       []interface{}{identity.Principal{Email: "bob@test.io"}, alice},
			wantActor:  "bob@test.io",
			wantRole:   identity.RoleUser,
			wantExtras: []interface{}{},
			wantString: "msg actor=bob@test.io role=User",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry("msg", tt.args)
			assert.Equal(t, tt.wantActor, e.actor.Email)
			assert.Equal(t, tt.wantRole, e.role)
			assert.Equal(t, tt.wantExtras, e.extras)
			assert.Equal(t, tt.wantString, e.String())
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())
	logger.Enable(false)

	logger.Warn("recreated missing notifications", map[string]interface{}{"count": 1}, identity.Principal{Email: "u@test.io"})
	assert.Equal(t, "recreated missing notifications actor=u@test.io\nmap[count:1]\n", buf.String())
}
