package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/storage/database/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.DataStore {
		s, err := Open(filepath.Join(t.TempDir(), "academy.db"))
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
