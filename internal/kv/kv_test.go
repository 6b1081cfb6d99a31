package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/fault"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "absent")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))

	require.NoError(t, s.Put(ctx, "a", []byte("one")))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	// Overwrite
	require.NoError(t, s.Put(ctx, "a", []byte("two")))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	// Delete is idempotent
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.True(t, fault.IsNotFound(err))
}

func TestMemory(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	testStore(t, s)
}

func TestBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.db")
	s, err := OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestBolt_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "slots.db")

	s1, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, "persisted", []byte("value")))
	require.NoError(t, s1.Close())

	s2, err := OpenBolt(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}
