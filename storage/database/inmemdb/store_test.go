package inmemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/storage/database/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.DataStore {
		return New()
	})
}

func TestStore_Closed(t *testing.T) {
	s := New()
	assert.NoError(t, s.Close())

	var v map[string]interface{}
	err := core.StoreError(s.Get(context.Background(), "courses/c1", &v), "get")
	assert.True(t, core.IsShutdown(err))
	assert.True(t, core.IsShutdown(s.Set(context.Background(), "courses/c1", map[string]string{"name": "x"})))
}
