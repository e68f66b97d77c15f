// Package authsvc implements identity providers.
package authsvc

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

// LocalProvider signs principals in against the bcrypt credentials kept in the DataStore.
type LocalProvider struct {
	svc *identity.Service

	mu        sync.RWMutex
	next      int
	listeners map[int]func(identity.AuthEvent)
}

var _ identity.Provider = (*LocalProvider)(nil)

func NewLocalProvider(svc *identity.Service) *LocalProvider {
	return &LocalProvider{
		svc:       svc,
		listeners: make(map[int]func(identity.AuthEvent)),
	}
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (identity.Principal, error) {
	usr, err := p.svc.Authenticate(ctx, email, password)
	if err != nil {
		return identity.Principal{}, errors.Wrap(err, "signing in")
	}
	p.emit(identity.AuthEvent{Principal: usr, SignedIn: true})
	return usr, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return core.ErrAuthRequired
	}
	p.emit(identity.AuthEvent{Principal: identity.Principal{Email: email}, SignedIn: false})
	return nil
}

func (p *LocalProvider) OnAuthStateChanged(fn func(identity.AuthEvent)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) emit(evt identity.AuthEvent) {
	p.mu.RLock()
	fns := make([]func(identity.AuthEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}
