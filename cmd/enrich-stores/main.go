// Command enrich-stores resolves coordinates for every store in a dataset and
// writes the enriched dataset.
//
// Usage:
//
//	go run ./cmd/enrich-stores -in stores.json -out stores_with_coordinates.json
//
// The input is read from -in, or from the dataset configured in -config when
// -in is empty. With -warm-cache both dataset variants are also written to the
// configured cache backend. -validate only checks the region table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/andreiashu/storegeo"
	"github.com/andreiashu/storegeo/storage"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		in         = flag.String("in", "", "input dataset file")
		out        = flag.String("out", "", "output file (default stdout)")
		regionPath = flag.String("region", "", "region table, overrides the config")
		validate   = flag.Bool("validate", false, "validate the region table and exit")
		warmCache  = flag.Bool("warm-cache", false, "write the result to the configured cache")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, *in, *out, *regionPath, *validate, *warmCache); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, in, out, regionPath string, validateOnly, warmCache bool) error {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	cfg, err := storegeo.LoadConfig(paths...)
	if err != nil {
		return err
	}
	if regionPath != "" {
		cfg.RegionFile = regionPath
	}
	if in != "" {
		cfg.DatasetFile = in
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := storegeo.NewLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	region, err := cfg.Region()
	if err != nil {
		return err
	}
	if err := region.Validate(); err != nil {
		return err
	}
	logger.Info("region table ok",
		zap.String("region", region.Name),
		zap.Int("cities", len(region.Cities)),
		zap.Int("provinces", len(region.Provinces)),
		zap.Int("countries", len(region.Countries)))
	if validateOnly {
		return nil
	}

	fetcher := cfg.Fetcher()
	if fetcher == nil {
		return fmt.Errorf("no input: pass -in or set dataset_file or dataset_url")
	}
	body, err := fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	ds, err := storegeo.ParseDataset(body)
	body.Close()
	if err != nil {
		return err
	}

	raw := storegeo.Normalize(ds.Stores, region.Bounds, logger)
	deduped := storegeo.Dedupe(raw)
	if dropped := len(raw) - len(deduped); dropped > 0 {
		logger.Info("dropped duplicate stores", zap.Int("count", dropped))
	}
	resolved, err := storegeo.NewResolver(region).ResolveBatch(ctx, deduped)
	if err != nil {
		return err
	}

	tiers := make(map[storegeo.Tier]int)
	for _, s := range resolved {
		tiers[s.Resolution]++
	}
	for tier, n := range tiers {
		logger.Info("resolved stores", zap.String("tier", string(tier)), zap.Int("count", n))
	}

	if warmCache {
		if err := writeCache(ctx, cfg, logger, deduped, resolved); err != nil {
			return err
		}
	}

	metadata := map[string]any{}
	for k, v := range ds.Metadata {
		metadata[k] = v
	}
	metadata["total_stores"] = len(resolved)
	metadata["resolution_tiers"] = tiers
	metadata["region"] = region.Name
	metadata["generated_at"] = time.Now().UTC().Format(time.RFC3339)

	return writeDataset(out, storegeo.Dataset{Stores: resolved, Metadata: metadata})
}

func writeCache(ctx context.Context, cfg *storegeo.Config, logger *zap.Logger, raw, resolved []storegeo.Store) error {
	backend, err := storage.Open(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	cache := storegeo.NewCache(backend, cfg.CacheOptions(logger)...)
	cache.Set(ctx, raw, false)
	cache.Set(ctx, resolved, true)
	if _, ok := cache.Get(ctx, true); !ok {
		return fmt.Errorf("cache backend %s did not keep the enriched stores", cfg.Cache.Backend)
	}
	logger.Info("cache warmed", zap.String("backend", cfg.Cache.Backend), zap.Int("stores", len(resolved)))
	return nil
}

func writeDataset(path string, ds storegeo.Dataset) error {
	w := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	return nil
}
