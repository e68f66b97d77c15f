// Package inmemdb is a DataStore kept in process memory, used for tests and local runs.
package inmemdb

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
)

var errClosed = core.NewShutdownError("in-memory store closed")

type Store struct {
	mu     sync.RWMutex
	docs   map[string]json.RawMessage
	hub    *core.Hub
	closed bool
}

var _ core.DataStore = (*Store)(nil)

func New() *Store {
	return &Store{
		docs: make(map[string]json.RawMessage),
		hub:  core.NewHub(),
	}
}

func (s *Store) Get(ctx context.Context, path string, dst interface{}) error {
	path, err := core.CleanPath(path)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errClosed
	}
	data, ok := s.docs[path]
	s.mu.RUnlock()

	if !ok {
		return errors.Wrap(core.ErrNotFound, path)
	}
	return core.DecodeValue(path, data, dst)
}

func (s *Store) List(ctx context.Context, path string) ([]core.Node, error) {
	return s.scan(ctx, path, true)
}

func (s *Store) Tree(ctx context.Context, path string) ([]core.Node, error) {
	return s.scan(ctx, path, false)
}

func (s *Store) scan(ctx context.Context, path string, directOnly bool) ([]core.Node, error) {
	path, err := core.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	nodes := make([]core.Node, 0)
	for docPath, data := range s.docs {
		key, ok := core.RelativeKey(docPath, path)
		if !ok || (directOnly && !core.IsDirectChild(key)) {
			continue
		}
		nodes = append(nodes, core.Node{Key: key, Value: append(json.RawMessage(nil), data...)})
	}
	core.SortNodes(nodes)
	return nodes, nil
}

func (s *Store) Set(ctx context.Context, path string, value interface{}) error {
	return s.Update(ctx, map[string]interface{}{path: value})
}

func (s *Store) Remove(ctx context.Context, path string) error {
	return s.Update(ctx, map[string]interface{}{path: nil})
}

func (s *Store) Update(ctx context.Context, values map[string]interface{}) error {
	prepared, err := core.PrepareUpdate(values)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	for path, data := range prepared {
		if data == nil {
			for docPath := range s.docs {
				if core.IsWithin(docPath, path) {
					delete(s.docs, docPath)
				}
			}
		}
	}
	for path, data := range prepared {
		if data != nil {
			s.docs[path] = data
		}
	}
	s.mu.Unlock()

	s.hub.Publish(core.EventsFor(prepared)...)
	return nil
}

func (s *Store) Subscribe(prefix string, fn func(core.Event)) func() {
	return s.hub.Subscribe(prefix, fn)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
