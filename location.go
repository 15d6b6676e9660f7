package storegeo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default location request limits.
const (
	DefaultLocationTimeout = 10 * time.Second
	DefaultLocationMaxAge  = 5 * time.Minute
)

// LocationErrorKind categorizes a failed location request.
type LocationErrorKind string

const (
	LocationPermissionDenied LocationErrorKind = "permission_denied"
	LocationUnavailable      LocationErrorKind = "unavailable"
	LocationTimeout          LocationErrorKind = "timeout"
	LocationUnsupported      LocationErrorKind = "unsupported"
)

var locationMessages = map[LocationErrorKind]string{
	LocationPermissionDenied: "Location permission denied. Allow location access to sort stores by distance.",
	LocationUnavailable:      "Unable to get your location. Please ensure location services are enabled.",
	LocationTimeout:          "Finding your location took too long. Please try again.",
	LocationUnsupported:      "Geolocation is not supported on this device.",
}

// LocationError is a categorized location failure.
type LocationError struct {
	Kind LocationErrorKind
	Err  error
}

// NewLocationError returns a LocationError of kind wrapping err.
func NewLocationError(kind LocationErrorKind, err error) *LocationError {
	return &LocationError{Kind: kind, Err: err}
}

func (e *LocationError) Error() string {
	if e.Err == nil {
		return "location " + string(e.Kind)
	}
	return fmt.Sprintf("location %s: %v", e.Kind, e.Err)
}

func (e *LocationError) Unwrap() error { return e.Err }

// Message returns text suitable for showing to the user.
func (e *LocationError) Message() string {
	if msg, ok := locationMessages[e.Kind]; ok {
		return msg
	}
	return locationMessages[LocationUnavailable]
}

// PositionOptions bounds a location request.
type PositionOptions struct {
	HighAccuracy bool
	// Timeout is the longest the provider may take.
	Timeout time.Duration
	// MaximumAge is the oldest acceptable fix, so a recent fix cached by the
	// OS can be used.
	MaximumAge time.Duration
}

// DefaultPositionOptions returns high accuracy, a 10s timeout and a five
// minute maximum age.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		HighAccuracy: true,
		Timeout:      DefaultLocationTimeout,
		MaximumAge:   DefaultLocationMaxAge,
	}
}

// Fix is a position reading from a provider.
type Fix struct {
	Coordinates Coordinates
	// Timestamp is when the reading was taken.
	Timestamp time.Time
	// AccuracyMeters is the reported accuracy radius, 0 if unknown.
	AccuracyMeters float64
}

// LocationProvider supplies the user's position. Implementations should
// return a *LocationError for permission and availability failures and
// honor ctx cancellation.
type LocationProvider interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error)
}

// LocationProviderFunc adapts a function to LocationProvider.
type LocationProviderFunc func(ctx context.Context, opts PositionOptions) (Fix, error)

func (f LocationProviderFunc) CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error) {
	return f(ctx, opts)
}

// LocationState is the lifecycle of a Locator.
type LocationState int

const (
	LocationIdle     LocationState = iota // never requested, or cleared
	LocationLocating                      // request in flight
	LocationLocated                       // last request succeeded
	LocationFailed                        // last request failed
)

func (s LocationState) String() string {
	switch s {
	case LocationIdle:
		return "idle"
	case LocationLocating:
		return "locating"
	case LocationLocated:
		return "located"
	case LocationFailed:
		return "failed"
	}
	return fmt.Sprintf("LocationState(%d)", int(s))
}

// Locator requests the user's position and remembers the outcome. It keeps
// "not requested", "failed" and "located" distinct. Safe for concurrent use.
type Locator struct {
	provider LocationProvider
	opts     PositionOptions
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.RWMutex
	state    LocationState
	location *Coordinates
	err      *LocationError
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithPositionOptions overrides DefaultPositionOptions.
func WithPositionOptions(opts PositionOptions) LocatorOption {
	return func(l *Locator) { l.opts = opts }
}

// WithLocatorClock replaces time.Now for fix age checks.
func WithLocatorClock(now func() time.Time) LocatorOption {
	return func(l *Locator) { l.now = now }
}

// WithLocatorLogger sets the logger.
func WithLocatorLogger(logger *zap.Logger) LocatorOption {
	return func(l *Locator) { l.logger = logger }
}

// NewLocator returns an idle Locator. A nil provider makes every request
// fail as unsupported.
func NewLocator(provider LocationProvider, opts ...LocatorOption) *Locator {
	l := &Locator{
		provider: provider,
		opts:     DefaultPositionOptions(),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Request asks the provider for a position within the configured timeout.
// Failures are returned as *LocationError; the previous location is dropped
// either way.
func (l *Locator) Request(ctx context.Context) (Coordinates, error) {
	l.mu.Lock()
	l.state = LocationLocating
	l.err = nil
	l.mu.Unlock()

	c, lerr := l.request(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if lerr != nil {
		l.state = LocationFailed
		l.location = nil
		l.err = lerr
		l.logger.Info("location request failed", zap.String("kind", string(lerr.Kind)), zap.Error(lerr.Err))
		return Coordinates{}, lerr
	}
	l.state = LocationLocated
	l.location = &c
	return c, nil
}

func (l *Locator) request(ctx context.Context) (Coordinates, *LocationError) {
	if l.provider == nil {
		return Coordinates{}, NewLocationError(LocationUnsupported, errors.New("no location provider"))
	}

	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	fix, err := l.provider.CurrentPosition(ctx, l.opts)
	if err != nil {
		var lerr *LocationError
		switch {
		case errors.As(err, &lerr):
			return Coordinates{}, lerr
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			return Coordinates{}, NewLocationError(LocationTimeout, err)
		default:
			return Coordinates{}, NewLocationError(LocationUnavailable, err)
		}
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Coordinates{}, NewLocationError(LocationTimeout, ctx.Err())
	}

	if !fix.Coordinates.IsFinite() {
		return Coordinates{}, NewLocationError(LocationUnavailable, errors.New("provider returned a non-finite position"))
	}
	if l.opts.MaximumAge > 0 && !fix.Timestamp.IsZero() {
		if age := l.now().Sub(fix.Timestamp); age > l.opts.MaximumAge {
			return Coordinates{}, NewLocationError(LocationUnavailable,
				fmt.Errorf("fix is %s old, maximum age is %s", age.Round(time.Second), l.opts.MaximumAge))
		}
	}
	return fix.Coordinates, nil
}

// Clear forgets the location and any error and returns to LocationIdle.
func (l *Locator) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = LocationIdle
	l.location = nil
	l.err = nil
}

// State returns the current state.
func (l *Locator) State() LocationState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Location returns the last successful position, or nil.
func (l *Locator) Location() *Coordinates {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.location == nil {
		return nil
	}
	c := *l.location
	return &c
}

// Err returns the last failure, or nil.
func (l *Locator) Err() *LocationError {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}
