// Package pgdb is a DataStore backed by a single postgres table of (path, jsonb value) rows.
package pgdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
)

const (
	getQuery = `SELECT value FROM nodes WHERE path = $1`

	// left() instead of LIKE: email keys may contain '_' and '%'
	scanQuery = `SELECT path, value FROM nodes WHERE left(path, char_length($1)) = $1 ORDER BY path`

	upsertQuery = `INSERT INTO nodes (path, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	deleteQuery = `DELETE FROM nodes WHERE path = $1 OR left(path, char_length($2)) = $2`
)

type row struct {
	Path  string `db:"path"`
	Value []byte `db:"value"`
}

type Store struct {
	db  *sqlx.DB
	hub *core.Hub
}

var _ core.DataStore = (*Store)(nil)

// NewStore wraps an open, migrated database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, hub: core.NewHub()}
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Get(ctx context.Context, path string, dst interface{}) error {
	path, err := core.CleanPath(path)
	if err != nil {
		return err
	}

	var data []byte
	if err = s.db.GetContext(ctx, &data, getQuery, path); err != nil {
		if err == sql.ErrNoRows {
			return errors.Wrap(core.ErrNotFound, path)
		}
		return errors.Wrapf(err, "reading %s", path)
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

	var rows []row
	if err = s.db.SelectContext(ctx, &rows, scanQuery, path+"/"); err != nil {
		return nil, errors.Wrapf(err, "scanning %s", path)
	}

	nodes := make([]core.Node, 0, len(rows))
	for _, r := range rows {
		key, ok := core.RelativeKey(r.Path, path)
		if !ok || (directOnly && !core.IsDirectChild(key)) {
			continue
		}
		nodes = append(nodes, core.Node{Key: key, Value: json.RawMessage(r.Value)})
	}
	// ORDER BY follows the database collation
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

	paths := make([]string, 0, len(prepared))
	for path := range prepared {
		paths = append(paths, path)
	}
	sort.Strings(paths) // stable lock order

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	for _, path := range paths {
		if prepared[path] != nil {
			continue
		}
		if _, err = tx.ExecContext(ctx, deleteQuery, path, path+"/"); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "removing %s", path)
		}
	}
	for _, path := range paths {
		data := prepared[path]
		if data == nil {
			continue
		}
		if _, err = tx.ExecContext(ctx, upsertQuery, path, string(data)); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing update")
	}

	s.hub.Publish(core.EventsFor(prepared)...)
	return nil
}

func (s *Store) Subscribe(prefix string, fn func(core.Event)) func() {
	return s.hub.Subscribe(prefix, fn)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func pqQuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}
