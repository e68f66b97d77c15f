package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edecs/academy/core"
)

// AuthEvent is emitted by a Provider when a principal signs in or out.
type AuthEvent struct {
	Principal Principal
	SignedIn  bool
}

// Provider is the identity provider boundary.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Principal, error)
	SignOut(ctx context.Context, email string) error
	OnAuthStateChanged(fn func(AuthEvent)) (unsubscribe func())
}

// Session is the advisory view of a signed-in principal.
// It is never used for an access decision: privileged operations re-resolve the grant.
type Session struct {
	Principal  Principal
	Grant      RoleGrant
	ResolvedAt time.Time
}

// Sessions keeps the sessions of signed-in principals, keyed by email.
type Sessions struct {
	mu sync.RWMutex
	m  map[string]Session
}

func newSessions() *Sessions {
	return &Sessions{m: make(map[string]Session)}
}

func (s *Sessions) get(email string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.m[email]
	return sess, ok
}

func (s *Sessions) put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.Principal.Email] = sess
}

// replace stores sess only while its principal is still signed in.
func (s *Sessions) replace(sess Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[sess.Principal.Email]; !ok {
		return false
	}
	s.m[sess.Principal.Email] = sess
	return true
}

func (s *Sessions) drop(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, email)
}

// Session returns the advisory session of email, if signed in.
func (svc *Service) Session(email string) (Session, bool) {
	return svc.sessions.get(core.CleanString(email, true /* lower */))
}

// Watch keeps the sessions in sync with a Provider and with grant changes in the store.
// A principal whose grant cannot be resolved at sign-in gets no session.
func (svc *Service) Watch(p Provider) (stop func()) {
	unsubAuth := p.OnAuthStateChanged(func(evt AuthEvent) {
		email := core.CleanString(evt.Principal.Email, true /* lower */)
		if !evt.SignedIn {
			svc.sessions.drop(email)
			return
		}
		svc.refreshSession(evt.Principal, true)
	})

	unsubRoles := svc.store.Subscribe(core.RolesRoot, func(evt core.Event) {
		key := strings.TrimPrefix(evt.Path, core.RolesRoot+"/")
		if key == evt.Path || strings.Contains(key, "/") {
			return
		}
		email := core.EmailFromKey(key)
		if sess, ok := svc.sessions.get(email); ok {
			go svc.refreshSession(sess.Principal, false) // store callbacks run inside the writer's call
		}
	})

	return func() {
		unsubAuth()
		unsubRoles()
	}
}

// refreshSession resolves the grant of usr and stores its session.
// Unless signIn is set, a principal that signed out meanwhile stays signed out.
func (svc *Service) refreshSession(usr Principal, signIn bool) {
	email := core.CleanString(usr.Email, true /* lower */)
	grant, err := svc.Resolve(context.Background(), email)
	if err != nil {
		svc.sessions.drop(email)
		svc.logger.Warn("resolving role for session", err, usr)
		return
	}
	usr.Email = email
	usr.Role = grant.Role
	sess := Session{Principal: usr, Grant: grant, ResolvedAt: nowFunc()}
	if signIn {
		svc.sessions.put(sess)
		return
	}
	svc.sessions.replace(sess)
}
