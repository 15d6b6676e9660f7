package storegeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrKeyNotFound is returned by Storage.Get when a key is absent.
var ErrKeyNotFound = errors.New("key not found")

// DefaultCacheTTL is how long cached stores stay fresh.
const DefaultCacheTTL = 24 * time.Hour

// DefaultCacheKeyPrefix namespaces the cache keys.
const DefaultCacheKeyPrefix = "storegeo_v2"

// Storage is a persistent key/value store. TTL is enforced by Cache, not by
// the storage.
type Storage interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set inserts or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStorage is a Storage kept in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// CacheMetrics counts cache outcomes per variant ("raw", "coordinates").
type CacheMetrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	Purges        prometheus.Counter
	WriteFailures *prometheus.CounterVec
}

// NewCacheMetrics creates the cache counters and registers them with reg
// when reg is not nil.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storegeo", Subsystem: "cache", Name: "hits_total",
			Help: "Cache reads served from a fresh entry.",
		}, []string{"variant"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storegeo", Subsystem: "cache", Name: "misses_total",
			Help: "Cache reads that found no fresh entry.",
		}, []string{"variant"}),
		Purges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storegeo", Subsystem: "cache", Name: "purges_total",
			Help: "Times all cache entries were removed.",
		}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storegeo", Subsystem: "cache", Name: "write_failures_total",
			Help: "Cache writes that could not be persisted.",
		}, []string{"variant"}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Purges, m.WriteFailures)
	}
	return m
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithKeyPrefix sets the prefix of the three cache keys.
func WithKeyPrefix(prefix string) CacheOption {
	return func(c *Cache) { c.prefix = prefix }
}

// WithCacheLogger sets the logger for swallowed storage errors.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics enables cache counters.
func WithMetrics(m *CacheMetrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// Cache keeps two variants of the store list, raw and coordinate-enriched,
// under one shared write timestamp. Entries older than the TTL are purged on
// read. Storage failures are logged and treated as misses; no method returns
// an error.
type Cache struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
	prefix  string
	logger  *zap.Logger
	metrics *CacheMetrics
}

// NewCache returns a Cache over storage.
func NewCache(storage Storage, opts ...CacheOption) *Cache {
	c := &Cache{
		storage: storage,
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		prefix:  DefaultCacheKeyPrefix,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Keys returns the raw, enriched and timestamp keys.
func (c *Cache) Keys() (raw, withCoordinates, timestamp string) {
	return c.prefix + "_stores", c.prefix + "_stores_with_coordinates", c.prefix + "_timestamp"
}

func (c *Cache) dataKey(withCoordinates bool) string {
	raw, enriched, _ := c.Keys()
	if withCoordinates {
		return enriched
	}
	return raw
}

func variantLabel(withCoordinates bool) string {
	if withCoordinates {
		return "coordinates"
	}
	return "raw"
}

// Get returns the cached stores of the requested variant if the shared
// timestamp is younger than the TTL. An expired timestamp, or any read or
// decode failure, purges both variants and the timestamp.
func (c *Cache) Get(ctx context.Context, withCoordinates bool) ([]Store, bool) {
	stores, err := c.get(ctx, withCoordinates)
	if err == nil {
		c.count(c.hits(), withCoordinates)
		return stores, true
	}

	c.count(c.misses(), withCoordinates)
	var expired *cacheExpiredError
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return nil, false
	case errors.As(err, &expired):
		c.logger.Debug("cache expired", zap.Duration("age", expired.age), zap.Duration("ttl", c.ttl))
	default:
		c.logger.Warn("cache read failed, purging", zap.String("variant", variantLabel(withCoordinates)), zap.Error(err))
	}
	c.Clear(ctx)
	return nil, false
}

type cacheExpiredError struct {
	age time.Duration
}

func (e *cacheExpiredError) Error() string {
	return fmt.Sprintf("cache entry expired (age %s)", e.age)
}

func (c *Cache) get(ctx context.Context, withCoordinates bool) ([]Store, error) {
	_, _, tsKey := c.Keys()
	tsRaw, err := c.storage.Get(ctx, tsKey)
	if err != nil {
		return nil, fmt.Errorf("reading timestamp: %w", err)
	}
	ms, err := strconv.ParseInt(string(tsRaw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", tsRaw, err)
	}
	if age := c.now().Sub(time.UnixMilli(ms)); age >= c.ttl {
		return nil, &cacheExpiredError{age: age}
	}

	data, err := c.storage.Get(ctx, c.dataKey(withCoordinates))
	if err != nil {
		return nil, fmt.Errorf("reading %s stores: %w", variantLabel(withCoordinates), err)
	}
	var stores []Store
	if err := json.Unmarshal(data, &stores); err != nil {
		return nil, fmt.Errorf("decoding %s stores: %w", variantLabel(withCoordinates), err)
	}
	return stores, nil
}

// Set stores the variant and overwrites the shared timestamp. If the data
// cannot be written the timestamp is left alone, so previously cached data
// keeps its age.
func (c *Cache) Set(ctx context.Context, stores []Store, withCoordinates bool) {
	if stores == nil {
		stores = []Store{}
	}
	data, err := json.Marshal(stores)
	if err != nil {
		c.writeFailed(withCoordinates, fmt.Errorf("encoding stores: %w", err))
		return
	}
	if err := c.storage.Set(ctx, c.dataKey(withCoordinates), data); err != nil {
		c.writeFailed(withCoordinates, err)
		return
	}
	_, _, tsKey := c.Keys()
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.storage.Set(ctx, tsKey, []byte(ts)); err != nil {
		c.writeFailed(withCoordinates, fmt.Errorf("writing timestamp: %w", err))
	}
}

func (c *Cache) writeFailed(withCoordinates bool, err error) {
	c.count(c.writeFailures(), withCoordinates)
	c.logger.Warn("cache write failed", zap.String("variant", variantLabel(withCoordinates)), zap.Error(err))
}

// Clear removes both variants and the timestamp.
func (c *Cache) Clear(ctx context.Context) {
	raw, enriched, ts := c.Keys()
	for _, key := range []string{raw, enriched, ts} {
		if err := c.storage.Delete(ctx, key); err != nil && !errors.Is(err, ErrKeyNotFound) {
			c.logger.Warn("cache clear failed", zap.String("key", key), zap.Error(err))
		}
	}
	if c.metrics != nil {
		c.metrics.Purges.Inc()
	}
}

func (c *Cache) hits() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Hits
}

func (c *Cache) misses() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Misses
}

func (c *Cache) writeFailures() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.WriteFailures
}

func (c *Cache) count(v *prometheus.CounterVec, withCoordinates bool) {
	if v != nil {
		v.WithLabelValues(variantLabel(withCoordinates)).Inc()
	}
}
