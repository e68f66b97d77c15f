// Package storetest holds the behaviour every core.DataStore implementation must show.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/edecs/academy/core"
)

type doc struct {
	Name string `json:"name"`
	N    int    `json:"n,omitempty"`
}

func keys(nodes []core.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Key)
	}
	return out
}

// Run runs the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) core.DataStore) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		var d doc
		err := s.Get(ctx, "users/nobody@test,cd", &d)
		if errors.Cause(err) != core.ErrNotFound {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set & get", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Set(ctx, "users/jane@test,cd", doc{Name: "Jane"}))
		assert.NoError(t, s.Set(ctx, "users/jane@test,cd", doc{Name: "Jane Doe", N: 2}))

		var got doc
		assert.NoError(t, s.Get(ctx, "users/jane@test,cd", &got))
		assert.Equal(t, doc{Name: "Jane Doe", N: 2}, got)
	})

	t.Run("invalid path", func(t *testing.T) {
		s := newStore(t)
		err := s.Set(ctx, "users/jane@test.cd", doc{Name: "Jane"})
		assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
		err = s.Get(ctx, "users//x", &doc{})
		assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
	})

	t.Run("malformed record", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Set(ctx, "tasks/1", "not an object"))
		err := s.Get(ctx, "tasks/1", &doc{})
		assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
	})

	t.Run("list & tree", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Update(ctx, map[string]interface{}{
			"courses/mainCourses/c2":               doc{Name: "Two"},
			"courses/mainCourses/c1":               doc{Name: "One"},
			"courses/mainCourses/c1/subCourses/s1": doc{Name: "S1"},
			"courses/mainCoursesOld/c9":            doc{Name: "Nine"},
			"submissions/jane@test,cd/s1":          doc{Name: "Sub"},
		}))

		nodes, err := s.List(ctx, "courses/mainCourses")
		assert.NoError(t, err)
		assert.Equal(t, []string{"c1", "c2"}, keys(nodes))
		var d doc
		assert.NoError(t, nodes[0].Decode(&d))
		assert.Equal(t, "One", d.Name)

		nodes, err = s.Tree(ctx, "courses/mainCourses")
		assert.NoError(t, err)
		assert.Equal(t, []string{"c1", "c1/subCourses/s1", "c2"}, keys(nodes))

		nodes, err = s.List(ctx, "submissions")
		assert.NoError(t, err)
		assert.Empty(t, nodes)
		nodes, err = s.Tree(ctx, "submissions")
		assert.NoError(t, err)
		assert.Equal(t, []string{"jane@test,cd/s1"}, keys(nodes))

		nodes, err = s.List(ctx, "nothing")
		assert.NoError(t, err)
		assert.NotNil(t, nodes)
		assert.Empty(t, nodes)
	})

	t.Run("remove subtree", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Update(ctx, map[string]interface{}{
			"courses/mainCourses/c1":               doc{Name: "One"},
			"courses/mainCourses/c1/subCourses/s1": doc{Name: "S1"},
			"courses/mainCourses/c10":              doc{Name: "Ten"},
		}))
		assert.NoError(t, s.Remove(ctx, "courses/mainCourses/c1"))

		nodes, err := s.Tree(ctx, "courses/mainCourses")
		assert.NoError(t, err)
		assert.Equal(t, []string{"c10"}, keys(nodes))

		// removing a missing path is not an error
		assert.NoError(t, s.Remove(ctx, "courses/mainCourses/c1"))
	})

	t.Run("atomic update moves a record", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Set(ctx, "tasks/t1", doc{Name: "task"}))
		assert.NoError(t, s.Update(ctx, map[string]interface{}{
			"tasks/t1":         nil,
			"archivedTasks/t1": doc{Name: "task"},
		}))
		assert.True(t, core.IsNotFound(s.Get(ctx, "tasks/t1", &doc{})))
		var got doc
		assert.NoError(t, s.Get(ctx, "archivedTasks/t1", &got))
		assert.Equal(t, "task", got.Name)
	})

	t.Run("rejected update writes nothing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, map[string]interface{}{
			"tasks/t1":    doc{Name: "task"},
			"tasks/t.bad": doc{Name: "bad"},
		})
		assert.Error(t, err)
		assert.True(t, core.IsNotFound(s.Get(ctx, "tasks/t1", &doc{})))
	})

	t.Run("subscribe", func(t *testing.T) {
		s := newStore(t)
		var mu sync.Mutex
		var events []core.Event
		unsub := s.Subscribe("roles", func(e core.Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		})

		assert.NoError(t, s.Set(ctx, "roles/jane@test,cd", doc{Name: "User"}))
		assert.NoError(t, s.Set(ctx, "users/jane@test,cd", doc{Name: "Jane"}))
		assert.NoError(t, s.Remove(ctx, "roles/jane@test,cd"))
		unsub()
		assert.NoError(t, s.Set(ctx, "roles/john@test,cd", doc{Name: "User"}))

		mu.Lock()
		defer mu.Unlock()
		if assert.Len(t, events, 2) {
			assert.Equal(t, "roles/jane@test,cd", events[0].Path)
			assert.NotNil(t, events[0].Value)
			assert.Nil(t, events[1].Value)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, s.Set(cctx, "tasks/t1", doc{Name: "task"}))
	})
}
