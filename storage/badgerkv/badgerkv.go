// Package badgerkv stores cache entries in BadgerDB through badgerhold.
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/andreiashu/storegeo"
)

// entry is the record kept per key.
type entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Storage is a storegeo.Storage backed by a badgerhold store.
type Storage struct {
	store  *badgerhold.Store
	logger *zap.Logger
}

var _ storegeo.Storage = (*Storage)(nil)

// Open opens or creates the database in dir.
func Open(dir string, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating badger directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening badger database %s: %w", dir, err)
	}
	logger.Debug("badger cache storage opened", zap.String("path", dir))
	return &Storage{store: store, logger: logger}, nil
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	var e entry
	err := s.store.Get(key, &e)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, storegeo.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return e.Value, nil
}

func (s *Storage) Set(_ context.Context, key string, value []byte) error {
	e := entry{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := s.store.Upsert(key, &e); err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	err := s.store.Delete(key, &entry{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (s *Storage) UpdatedAt(key string) (time.Time, error) {
	var e entry
	err := s.store.Get(key, &e)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return time.Time{}, storegeo.ErrKeyNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting %s: %w", key, err)
	}
	return e.UpdatedAt, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
