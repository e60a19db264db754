package history_test

import (
	"testing"
	"time"

	"github.com/italolelis/cloudleecher/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	s := history.NewStore()

	s.Add(history.Entry{GID: "a", Name: "first", CompletedAt: time.Now().Add(-time.Hour)})
	s.Add(history.Entry{GID: "b", Name: "second", CompletedAt: time.Now()})

	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))

	e, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "second", e.Name)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].GID)
	assert.Equal(t, "a", all[1].GID)
}

func TestStore_AddOverwritesSameGID(t *testing.T) {
	s := history.NewStore()

	s.Add(history.Entry{GID: "a", Name: "old"})
	s.Add(history.Entry{GID: "a", Name: "new"})

	e, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "new", e.Name)
	assert.Len(t, s.All(), 1)
}

func TestStore_Clear(t *testing.T) {
	s := history.NewStore()
	s.Add(history.Entry{GID: "a"})

	s.Clear()

	assert.False(t, s.Has("a"))
	assert.Empty(t, s.All())
}
