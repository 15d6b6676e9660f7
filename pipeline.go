package storegeo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrStaleLoad is returned by Load and Refresh when a newer load started
	// before this one finished. The stale result is discarded.
	ErrStaleLoad = errors.New("load superseded by a newer load")

	// ErrRefreshThrottled is returned by Refresh when called again before the
	// refresh interval has passed.
	ErrRefreshThrottled = errors.New("refresh throttled")
)

// DefaultRefreshInterval is the minimum time between manual refreshes.
const DefaultRefreshInterval = 30 * time.Second

// fallbackWarning is shown when the feed could not be loaded.
const fallbackWarning = "Unable to load the latest store list. Showing previously loaded stores."

// sampleWarning is shown when nothing could be loaded and the bundled sample
// stores are used.
const sampleWarning = "Unable to load stores. Showing a limited sample list."

// Source says where a snapshot's stores came from.
type Source string

const (
	SourceNone    Source = ""
	SourceSample  Source = "sample"
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// Snapshot is the store list produced by one load.
type Snapshot struct {
	Stores []Store
	Source Source
	// Warning is a user-facing message when the load fell back to older or
	// sample data.
	Warning    string
	Generation uint64
	LoadedAt   time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithRefreshInterval sets the minimum time between manual refreshes. Zero
// disables throttling.
func WithRefreshInterval(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.refreshInterval = d }
}

// WithBounds sets the service region used to validate feed coordinates.
func WithBounds(b Bounds) PipelineOption {
	return func(p *Pipeline) { p.bounds = b }
}

// WithPipelineClock replaces time.Now for snapshot timestamps.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline loads the store list from the cache or the feed, resolves
// coordinates, and serves filtered, distance-ranked views of it.
//
// Every Load and Refresh claims a generation number when it starts. Only the
// most recently started load may publish its result or write the cache; an
// older one that finishes later gets ErrStaleLoad. Safe for concurrent use.
type Pipeline struct {
	fetcher         Fetcher
	cache           *Cache
	resolver        *Resolver
	bounds          Bounds
	logger          *zap.Logger
	now             func() time.Time
	refreshInterval time.Duration
	limiter         *rate.Limiter

	started atomic.Uint64

	mu      sync.RWMutex
	current Snapshot
	index   *Index
}

// NewPipeline returns a Pipeline with no stores loaded. A nil cache disables
// caching.
func NewPipeline(fetcher Fetcher, cache *Cache, resolver *Resolver, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fetcher:         fetcher,
		cache:           cache,
		resolver:        resolver,
		bounds:          DefaultRegion().Bounds,
		logger:          zap.NewNop(),
		now:             time.Now,
		refreshInterval: DefaultRefreshInterval,
		index:           NewIndex(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.refreshInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(p.refreshInterval), 1)
	} else {
		p.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return p
}

// Load publishes a new snapshot. It tries, in order, the enriched cache, the
// raw cache (resolved and written back as enriched), and the feed. When the
// feed fails the current stores are kept, or the sample stores are used if
// nothing was loaded yet; either way the snapshot carries a Warning and the
// error is nil.
//
// Errors are ErrStaleLoad and context cancellation.
func (p *Pipeline) Load(ctx context.Context) (Snapshot, error) {
	gen := p.begin(ctx, false)
	snap, err := p.load(ctx, gen, true)
	if err != nil {
		return Snapshot{}, err
	}
	return p.publish(snap)
}

// Refresh clears the cache and loads from the feed. Calls closer together
// than the refresh interval fail with ErrRefreshThrottled without touching
// the cache.
func (p *Pipeline) Refresh(ctx context.Context) (Snapshot, error) {
	if !p.limiter.Allow() {
		return Snapshot{}, ErrRefreshThrottled
	}
	gen := p.begin(ctx, true)
	snap, err := p.load(ctx, gen, false)
	if err != nil {
		return Snapshot{}, err
	}
	return p.publish(snap)
}

// begin claims the next generation. Claiming and clearing happen under mu so
// a cache write from an older load cannot land after the clear.
func (p *Pipeline) begin(ctx context.Context, clearCache bool) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	gen := p.started.Add(1)
	if clearCache && p.cache != nil {
		p.cache.Clear(ctx)
	}
	return gen
}

// store writes one cache variant unless a newer load has started. It
// reports false when gen is stale.
func (p *Pipeline) store(ctx context.Context, gen uint64, stores []Store, withCoordinates bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if latest := p.started.Load(); latest != gen {
		p.logger.Debug("skipping cache write from stale load",
			zap.Uint64("generation", gen),
			zap.Uint64("latest", latest))
		return false
	}
	if p.cache != nil {
		p.cache.Set(ctx, stores, withCoordinates)
	}
	return true
}

func (p *Pipeline) load(ctx context.Context, gen uint64, useCache bool) (Snapshot, error) {
	log := p.logger.With(zap.Uint64("generation", gen))

	if useCache && p.cache != nil {
		if stores, ok := p.cache.Get(ctx, true); ok {
			log.Debug("loaded stores from cache", zap.Int("count", len(stores)))
			return p.snapshot(gen, stores, SourceCache, ""), nil
		}
		if stores, ok := p.cache.Get(ctx, false); ok {
			resolved, err := p.resolver.ResolveBatch(ctx, stores)
			if err != nil {
				return Snapshot{}, err
			}
			if !p.store(ctx, gen, resolved, true) {
				return Snapshot{}, ErrStaleLoad
			}
			log.Debug("resolved stores from raw cache", zap.Int("count", len(resolved)))
			return p.snapshot(gen, resolved, SourceCache, ""), nil
		}
	}

	stores, err := p.fetch(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Snapshot{}, ctxErr
		}
		log.Warn("store feed unavailable", zap.Error(err))
		return p.fallback(ctx, gen)
	}

	if !p.store(ctx, gen, stores, false) {
		return Snapshot{}, ErrStaleLoad
	}
	resolved, err := p.resolver.ResolveBatch(ctx, stores)
	if err != nil {
		return Snapshot{}, err
	}
	if !p.store(ctx, gen, resolved, true) {
		return Snapshot{}, ErrStaleLoad
	}
	log.Info("loaded stores from feed", zap.Int("count", len(resolved)))
	return p.snapshot(gen, resolved, SourceNetwork, ""), nil
}

func (p *Pipeline) fetch(ctx context.Context) ([]Store, error) {
	if p.fetcher == nil {
		return nil, errors.New("no store feed configured")
	}
	body, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching stores: %w", err)
	}
	defer body.Close()

	ds, err := ParseDataset(body)
	if err != nil {
		return nil, err
	}
	return Normalize(ds.Stores, p.bounds, p.logger), nil
}

func (p *Pipeline) fallback(ctx context.Context, gen uint64) (Snapshot, error) {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	if len(current.Stores) > 0 {
		return p.snapshot(gen, current.Stores, current.Source, fallbackWarning), nil
	}
	sample, err := p.resolver.ResolveBatch(ctx, SampleStores())
	if err != nil {
		return Snapshot{}, err
	}
	return p.snapshot(gen, sample, SourceSample, sampleWarning), nil
}

func (p *Pipeline) snapshot(gen uint64, stores []Store, src Source, warning string) Snapshot {
	return Snapshot{
		Stores:     stores,
		Source:     src,
		Warning:    warning,
		Generation: gen,
		LoadedAt:   p.now(),
	}
}

// publish installs snap unless a newer load has started since it began.
func (p *Pipeline) publish(snap Snapshot) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if latest := p.started.Load(); snap.Generation != latest {
		p.logger.Debug("dropping stale load",
			zap.Uint64("generation", snap.Generation),
			zap.Uint64("latest", latest))
		return Snapshot{}, ErrStaleLoad
	}
	p.current = snap
	p.index = NewIndex(snap.Stores)
	return snap, nil
}

// Snapshot returns the last published snapshot.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// View filters the current stores by query and region, then, when user is
// known, annotates distances and ranks nearest first.
func (p *Pipeline) View(query, region string, user *Coordinates, opts ...FilterOptions) []Store {
	stores := FilterStores(p.Snapshot().Stores, query, region, opts...)
	if user == nil {
		return stores
	}
	return RankByDistance(AnnotateDistance(stores, user))
}

// Nearby returns the current stores within radiusKm of center, nearest
// first.
func (p *Pipeline) Nearby(center Coordinates, radiusKm float64) []Store {
	p.mu.RLock()
	idx := p.index
	p.mu.RUnlock()
	return idx.Within(center, radiusKm)
}

// Provinces returns the region choices for the current stores.
func (p *Pipeline) Provinces() []string {
	return Provinces(p.Snapshot().Stores)
}
