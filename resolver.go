package storegeo

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// resolveChunkSize is the number of stores resolved per batch unit.
const resolveChunkSize = 100

// Strategy is one tier of the coordinate lookup.
type Strategy interface {
	Tier() Tier
	// Locate returns the coordinate for s and the table key that matched.
	Locate(s Store) (c Coordinates, key string, ok bool)
}

// ExactCityMatch picks the first city whose name is a substring of the
// lowercased "address name" text. Table order decides overlaps, not
// specificity.
type ExactCityMatch struct {
	cities []Place
}

// NewExactCityMatch returns a city strategy over an ordered table. Keys must
// already be lowercase.
func NewExactCityMatch(cities []Place) *ExactCityMatch {
	return &ExactCityMatch{cities: append([]Place(nil), cities...)}
}

// Tier returns TierCity.
func (m *ExactCityMatch) Tier() Tier { return TierCity }

// Locate returns the first city named in the store's address or name.
func (m *ExactCityMatch) Locate(s Store) (Coordinates, string, bool) {
	text := strings.ToLower(s.Address + " " + s.Name)
	for _, p := range m.cities {
		if strings.Contains(text, p.Name) {
			return p.Coordinates(), p.Name, true
		}
	}
	return Coordinates{}, "", false
}

// ProvinceCentroid matches the store's province exactly.
type ProvinceCentroid struct {
	provinces map[string]Place
}

// NewProvinceCentroid returns a province strategy over provinces.
func NewProvinceCentroid(provinces []Place) *ProvinceCentroid {
	m := make(map[string]Place, len(provinces))
	for _, p := range provinces {
		m[p.Name] = p
	}
	return &ProvinceCentroid{provinces: m}
}

// Tier returns TierProvince.
func (m *ProvinceCentroid) Tier() Tier { return TierProvince }

// Locate returns the centroid of the store's province.
func (m *ProvinceCentroid) Locate(s Store) (Coordinates, string, bool) {
	if p, ok := m.provinces[s.Province]; ok {
		return p.Coordinates(), p.Name, true
	}
	return Coordinates{}, "", false
}

// CountryCentroid matches the store's country exactly and otherwise falls
// back to the deployment's default country. It never misses.
type CountryCentroid struct {
	countries map[string]Place
	fallback  Place
}

// NewCountryCentroid returns a country strategy. defaultCountry must have an
// entry in countries; Region.Validate guarantees this for region tables.
func NewCountryCentroid(countries []Place, defaultCountry string) *CountryCentroid {
	m := make(map[string]Place, len(countries))
	for _, p := range countries {
		m[p.Name] = p
	}
	fallback, ok := m[defaultCountry]
	if !ok && len(countries) > 0 {
		fallback = countries[0]
	}
	return &CountryCentroid{countries: m, fallback: fallback}
}

// Tier returns TierCountry.
func (m *CountryCentroid) Tier() Tier { return TierCountry }

// Locate returns the centroid of the store's country, or of the default
// country. ok is always true.
func (m *CountryCentroid) Locate(s Store) (Coordinates, string, bool) {
	if p, ok := m.countries[s.Country]; ok {
		return p.Coordinates(), p.Name, true
	}
	return m.fallback.Coordinates(), m.fallback.Name, true
}

// Resolution is the outcome of a lookup. It always carries a coordinate.
type Resolution struct {
	Coordinates Coordinates
	Tier        Tier
	Key         string
}

// Resolver assigns coordinates to stores by trying city, province and
// country strategies in that order. Safe for concurrent use.
type Resolver struct {
	strategies []Strategy
	country    *CountryCentroid
}

// NewResolver builds the standard three-tier resolver for region.
func NewResolver(region *Region) *Resolver {
	country := NewCountryCentroid(region.Countries, region.DefaultCountry)
	return &Resolver{
		strategies: []Strategy{
			NewExactCityMatch(region.Cities),
			NewProvinceCentroid(region.Provinces),
		},
		country: country,
	}
}

// Locate runs the strategies in order and returns the first match. The
// country tier is always last and cannot miss.
func (r *Resolver) Locate(s Store) Resolution {
	for _, st := range r.strategies {
		if c, key, ok := st.Locate(s); ok {
			return Resolution{Coordinates: c, Tier: st.Tier(), Key: key}
		}
	}
	c, key, _ := r.country.Locate(s)
	return Resolution{Coordinates: c, Tier: TierCountry, Key: key}
}

// Strategies returns the tiers in evaluation order.
func (r *Resolver) Strategies() []Strategy {
	out := make([]Strategy, 0, len(r.strategies)+1)
	out = append(out, r.strategies...)
	return append(out, r.country)
}

// Resolve returns s with coordinates assigned. Stores that already have
// coordinates are returned unchanged.
func (r *Resolver) Resolve(s Store) Store {
	if s.Coordinates != nil {
		return s
	}
	res := r.Locate(s)
	s.SetCoordinates(res.Coordinates, res.Tier)
	return s
}

// ResolveBatch resolves every store. Work is split into chunks that run
// concurrently, but each result is written to its input position so the
// output order matches stores. The input slice is not modified. The only
// error is ctx cancellation, in which case no partial result is returned.
func (r *Resolver) ResolveBatch(ctx context.Context, stores []Store) ([]Store, error) {
	if len(stores) == 0 {
		return []Store{}, nil
	}

	out := make([]Store, len(stores))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for start := 0; start < len(stores); start += resolveChunkSize {
		end := min(start+resolveChunkSize, len(stores))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = r.Resolve(stores[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
