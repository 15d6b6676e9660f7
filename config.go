package storegeo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// Cache backends understood by storage.Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Duration is a time.Duration written as "24h" or "10s" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the deployment configuration.
type Config struct {
	// RegionFile is a TOML or YAML region table. Empty uses the bundled
	// southern Africa table.
	RegionFile string `toml:"region_file"`
	// DatasetURL is the store feed. DatasetFile is used instead when set.
	DatasetURL  string `toml:"dataset_url"`
	DatasetFile string `toml:"dataset_file"`

	Cache    CacheConfig    `toml:"cache"`
	Location LocationConfig `toml:"location"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Logging  LoggingConfig  `toml:"logging"`
}

type CacheConfig struct {
	Backend   string   `toml:"backend" validate:"oneof=memory badger sqlite"`
	Path      string   `toml:"path" validate:"required_unless=Backend memory"` // directory for badger, file for sqlite
	TTL       Duration `toml:"ttl" validate:"gt=0"`
	KeyPrefix string   `toml:"key_prefix" validate:"required"`
}

type LocationConfig struct {
	HighAccuracy bool     `toml:"high_accuracy"`
	Timeout      Duration `toml:"timeout" validate:"gte=0"`
	MaximumAge   Duration `toml:"maximum_age" validate:"gte=0"`
}

type PipelineConfig struct {
	RefreshInterval Duration `toml:"refresh_interval" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// NewDefaultConfig returns the configuration used when no file is given.
func NewDefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Backend:   BackendMemory,
			TTL:       Duration(DefaultCacheTTL),
			KeyPrefix: DefaultCacheKeyPrefix,
		},
		Location: LocationConfig{
			HighAccuracy: true,
			Timeout:      Duration(DefaultLocationTimeout),
			MaximumAge:   Duration(DefaultLocationMaxAge),
		},
		Pipeline: PipelineConfig{
			RefreshInterval: Duration(DefaultRefreshInterval),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig starts from NewDefaultConfig, merges each TOML file in order
// (later files win), then applies STOREGEO_* environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()
	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides ignores values that do not parse, leaving the file or
// default setting in place.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOREGEO_REGION_FILE"); v != "" {
		cfg.RegionFile = v
	}
	if v := os.Getenv("STOREGEO_DATASET_URL"); v != "" {
		cfg.DatasetURL = v
	}
	if v := os.Getenv("STOREGEO_DATASET_FILE"); v != "" {
		cfg.DatasetFile = v
	}

	if v := os.Getenv("STOREGEO_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("STOREGEO_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	envDuration("STOREGEO_CACHE_TTL", &cfg.Cache.TTL)
	if v := os.Getenv("STOREGEO_CACHE_KEY_PREFIX"); v != "" {
		cfg.Cache.KeyPrefix = v
	}

	envDuration("STOREGEO_LOCATION_TIMEOUT", &cfg.Location.Timeout)
	envDuration("STOREGEO_LOCATION_MAX_AGE", &cfg.Location.MaximumAge)
	envDuration("STOREGEO_REFRESH_INTERVAL", &cfg.Pipeline.RefreshInterval)

	if v := os.Getenv("STOREGEO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

func envDuration(key string, dst *Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var d Duration
	if err := d.UnmarshalText([]byte(v)); err == nil {
		*dst = d
	}
}

// Validate checks field ranges and the region file extension.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RegionFile != "" {
		switch strings.ToLower(filepath.Ext(c.RegionFile)) {
		case ".toml", ".yaml", ".yml":
		default:
			return fmt.Errorf("invalid config: region file %s must be .toml, .yaml or .yml", c.RegionFile)
		}
	}
	return nil
}

// Region loads RegionFile, or returns the bundled region when it is empty.
func (c *Config) Region() (*Region, error) {
	if c.RegionFile == "" {
		return DefaultRegion(), nil
	}
	return LoadRegion(c.RegionFile)
}

// Fetcher returns the configured store feed, or nil when none is set.
func (c *Config) Fetcher() Fetcher {
	switch {
	case c.DatasetFile != "":
		return FileFetcher{Path: c.DatasetFile}
	case c.DatasetURL != "":
		return NewHTTPFetcher(c.DatasetURL)
	}
	return nil
}

// PositionOptions returns the location request limits.
func (c *Config) PositionOptions() PositionOptions {
	return PositionOptions{
		HighAccuracy: c.Location.HighAccuracy,
		Timeout:      c.Location.Timeout.Std(),
		MaximumAge:   c.Location.MaximumAge.Std(),
	}
}

// CacheOptions returns the Cache options for the configured TTL and prefix.
func (c *Config) CacheOptions(logger *zap.Logger) []CacheOption {
	return []CacheOption{
		WithTTL(c.Cache.TTL.Std()),
		WithKeyPrefix(c.Cache.KeyPrefix),
		WithCacheLogger(logger),
	}
}

// PipelineOptions returns the Pipeline options for the configured refresh
// interval.
func (c *Config) PipelineOptions(logger *zap.Logger) []PipelineOption {
	return []PipelineOption{
		WithRefreshInterval(c.Pipeline.RefreshInterval.Std()),
		WithLogger(logger),
	}
}

// LocatorOptions returns the Locator options for the configured location
// limits.
func (c *Config) LocatorOptions(logger *zap.Logger) []LocatorOption {
	return []LocatorOption{
		WithPositionOptions(c.PositionOptions()),
		WithLocatorLogger(logger),
	}
}
