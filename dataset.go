package storegeo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidDataset is returned when a payload does not have a "stores"
// array.
var ErrInvalidDataset = errors.New("invalid dataset")

// storeIDNamespace seeds ids derived for feed records that have none, so the
// same record gets the same id on every load.
var storeIDNamespace = uuid.MustParse("5d0c3a8e-6f0b-4b1e-9a57-2f3c8e1d7b40")

// Dataset is the store feed payload.
type Dataset struct {
	Stores   []Store        `json:"stores"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ParseDataset decodes a payload of the form {"stores": [...], "metadata": {...}}.
// A missing or non-array "stores" member is ErrInvalidDataset.
func ParseDataset(r io.Reader) (*Dataset, error) {
	var raw struct {
		Stores   json.RawMessage `json:"stores"`
		Metadata map[string]any  `json:"metadata"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}

	body := bytes.TrimSpace(raw.Stores)
	if len(body) == 0 || body[0] != '[' {
		return nil, fmt.Errorf("%w: stores is not an array", ErrInvalidDataset)
	}

	ds := &Dataset{Metadata: raw.Metadata}
	if err := json.Unmarshal(body, &ds.Stores); err != nil {
		return nil, fmt.Errorf("%w: decoding stores: %w", ErrInvalidDataset, err)
	}
	return ds, nil
}

// Normalize prepares feed records for resolution: it derives missing ids,
// lowercases search keywords, drops source coordinates that are not finite
// or fall outside bounds, recovers coordinates from map links, and clears
// any distance. The input slice is not modified.
func Normalize(stores []Store, bounds Bounds, logger *zap.Logger) []Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]Store, len(stores))
	for i, s := range stores {
		if s.ID.IsZero() {
			s.ID = StringID(uuid.NewSHA1(storeIDNamespace, []byte(s.Name+"\x00"+s.Address)).String())
		}

		if len(s.SearchKeywords) > 0 {
			kws := make([]string, 0, len(s.SearchKeywords))
			for _, kw := range s.SearchKeywords {
				if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
					kws = append(kws, kw)
				}
			}
			s.SearchKeywords = kws
		}

		if s.Coordinates != nil && !bounds.Contains(*s.Coordinates) {
			logger.Warn("dropping out-of-region coordinates",
				zap.String("store_id", s.ID.String()),
				zap.String("name", s.Name),
				zap.Float64("lat", s.Coordinates.Lat),
				zap.Float64("lng", s.Coordinates.Lng))
			s.ClearCoordinates()
		}
		switch {
		case s.Coordinates != nil:
			if s.Resolution == "" {
				s.Resolution = TierSource
			}
		case s.MapURL != "":
			if c, ok := CoordinatesFromMapURL(s.MapURL, bounds); ok {
				s.SetCoordinates(c, TierMapURL)
			}
		}
		if s.Coordinates == nil {
			s.Resolution = ""
		}
		s.HasCoordinates = s.Coordinates != nil
		s.Distance = nil
		out[i] = s
	}
	return out
}

// Fetcher retrieves the raw dataset payload.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (io.ReadCloser, error)

func (f FetcherFunc) Fetch(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// httpClient is the shared client for dataset downloads.
var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// HTTPFetcher downloads the dataset over HTTP(S).
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher for url using the shared client.
func NewHTTPFetcher(url string) *HTTPFetcher {
	return &HTTPFetcher{URL: url, Client: httpClient}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	client := f.Client
	if client == nil {
		client = httpClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", f.URL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", f.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP GET %s: status %d", f.URL, resp.StatusCode)
	}
	return resp.Body, nil
}

// FileFetcher reads the dataset from a local file.
type FileFetcher struct {
	Path string
}

func (f FileFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", f.Path, err)
	}
	return fh, nil
}
