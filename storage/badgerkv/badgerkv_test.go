package badgerkv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiashu/storegeo"
)

func openTemp(t *testing.T) (*Storage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	return s, dir
}

func TestStorageContract(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, storegeo.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	before := time.Now()
	require.NoError(t, s.Set(ctx, "k", []byte("v2")))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
	updated, err := s.UpdatedAt("k")
	require.NoError(t, err)
	assert.False(t, updated.Before(before.Add(-time.Second)))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, storegeo.ErrKeyNotFound)
	assert.NoError(t, s.Delete(ctx, "k"), "deleting a missing key is not an error")

	_, err = s.UpdatedAt("k")
	assert.ErrorIs(t, err, storegeo.ErrKeyNotFound)
}

func TestStoragePersists(t *testing.T) {
	ctx := context.Background()
	s, dir := openTemp(t)
	require.NoError(t, s.Set(ctx, "k", []byte("kept")))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), got)
}

func TestStorageBacksCache(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	cache := storegeo.NewCache(s)
	stores := storegeo.SampleStores()
	cache.Set(ctx, stores, true)
	got, ok := cache.Get(ctx, true)
	require.True(t, ok)
	assert.Equal(t, stores, got)

	cache.Clear(ctx)
	_, ok = cache.Get(ctx, true)
	assert.False(t, ok)
}
