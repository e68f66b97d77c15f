// Package database opens the configured DataStore engine.
package database

import (
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/storage/database/boltdb"
	"github.com/edecs/academy/storage/database/inmemdb"
	"github.com/edecs/academy/storage/database/pgdb"
)

// Open returns the DataStore selected by conf.Store.Engine.
// The postgres engine creates the database when missing and applies pending migrations.
func Open(conf *core.Config) (core.DataStore, error) {
	switch conf.Store.Engine {
	case core.StoreMemory:
		return inmemdb.New(), nil
	case core.StoreBolt:
		return boltdb.Open(conf.Store.BoltPath)
	case core.StorePostgres:
		if err := pgdb.CreateIfNotExist(conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
		db, err := pgdb.Connect(conf)
		if err != nil {
			return nil, err
		}
		if err = pgdb.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return pgdb.NewStore(db), nil
	default:
		return nil, errors.Errorf("unknown store engine %q", conf.Store.Engine)
	}
}
