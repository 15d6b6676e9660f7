// Package storage opens the cache storage backend named in the config.
package storage

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/andreiashu/storegeo"
	"github.com/andreiashu/storegeo/storage/badgerkv"
	"github.com/andreiashu/storegeo/storage/sqlitekv"
)

// Backend is an open cache storage that must be closed after use.
type Backend interface {
	storegeo.Storage
	Close() error
}

type memoryBackend struct {
	*storegeo.MemoryStorage
}

func (memoryBackend) Close() error { return nil }

// Open returns the backend selected by cfg.Backend.
func Open(cfg storegeo.CacheConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case storegeo.BackendMemory, "":
		return memoryBackend{storegeo.NewMemoryStorage()}, nil
	case storegeo.BackendBadger:
		if cfg.Path == "" {
			return nil, errors.New("badger cache backend needs a path")
		}
		s, err := badgerkv.Open(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case storegeo.BackendSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlite cache backend needs a path")
		}
		s, err := sqlitekv.Open(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
