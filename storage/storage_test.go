package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiashu/storegeo"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  storegeo.CacheConfig
	}{
		{"memory", storegeo.CacheConfig{Backend: storegeo.BackendMemory}},
		{"default", storegeo.CacheConfig{}},
		{"badger", storegeo.CacheConfig{Backend: storegeo.BackendBadger, Path: filepath.Join(dir, "badger")}},
		{"sqlite", storegeo.CacheConfig{Backend: storegeo.BackendSQLite, Path: filepath.Join(dir, "cache.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend, err := Open(tt.cfg, nil)
			require.NoError(t, err)
			defer func() { assert.NoError(t, backend.Close()) }()

			require.NoError(t, backend.Set(ctx, "k", []byte("v")))
			got, err := backend.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	for _, cfg := range []storegeo.CacheConfig{
		{Backend: "redis"},
		{Backend: storegeo.BackendBadger},
		{Backend: storegeo.BackendSQLite},
	} {
		backend, err := Open(cfg, nil)
		assert.Error(t, err, "backend %q", cfg.Backend)
		assert.Nil(t, backend)
	}
}
