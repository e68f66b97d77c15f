// Package boltdb is a DataStore persisted in a single bbolt file.
// Every document is stored under its full path in one bucket, so subtrees are contiguous key ranges.
package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/edecs/academy/core"
)

var nodesBucket = []byte("nodes")

type Store struct {
	db  *bbolt.DB
	hub *core.Hub
}

var _ core.DataStore = (*Store)(nil)

// Open opens (or creates) the bolt file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bolt file %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nodesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating nodes bucket")
	}
	return &Store{db: db, hub: core.NewHub()}, nil
}

func (s *Store) Get(ctx context.Context, path string, dst interface{}) error {
	path, err := core.CleanPath(path)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	var data []byte
	err = s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(nodesBucket).Get([]byte(path)); v != nil {
			data = append(data, v...) // v is only valid during the transaction
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if data == nil {
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

	prefix := []byte(path + "/")
	nodes := make([]core.Node, 0)
	err = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(nodesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			key := string(k[len(prefix):])
			if directOnly && !core.IsDirectChild(key) {
				continue
			}
			nodes = append(nodes, core.Node{Key: key, Value: append(json.RawMessage(nil), v...)})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", path)
	}
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

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		for path, data := range prepared {
			if data != nil {
				continue
			}
			if err := deleteTree(b, path); err != nil {
				return err
			}
		}
		for path, data := range prepared {
			if data == nil {
				continue
			}
			if err := b.Put([]byte(path), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "updating nodes")
	}

	s.hub.Publish(core.EventsFor(prepared)...)
	return nil
}

// deleteTree removes the document at path and every document below it.
func deleteTree(b *bbolt.Bucket, path string) error {
	if err := b.Delete([]byte(path)); err != nil {
		return err
	}
	prefix := []byte(path + "/")
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Subscribe(prefix string, fn func(core.Event)) func() {
	return s.hub.Subscribe(prefix, fn)
}

func (s *Store) Close() error {
	return s.db.Close()
}
