package storegeo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestResolverTiers(t *testing.T) {
	r := NewResolver(DefaultRegion())

	tests := []struct {
		name     string
		store    Store
		wantTier Tier
		wantKey  string
		want     Coordinates
	}{
		{
			name: "claremont wins by table order",
			store: Store{
				Name:     "Twenty on Vineyard",
				Address:  "20 Vineyard Rd, Claremont, Cape Town",
				Province: "Western Cape",
				Country:  "South Africa",
			},
			wantTier: TierCity,
			wantKey:  "claremont",
			want:     Coordinates{Lat: -33.9794, Lng: 18.4615},
		},
		{
			name:     "city in the store name",
			store:    Store{Name: "Tokai FreshStop", Address: "Main Rd", Province: "Western Cape"},
			wantTier: TierCity,
			wantKey:  "tokai",
			want:     Coordinates{Lat: -34.0697, Lng: 18.4234},
		},
		{
			name:     "case folded",
			store:    Store{Name: "Cafe", Address: "12 BERGVLIET ROAD"},
			wantTier: TierCity,
			wantKey:  "bergvliet",
			want:     Coordinates{Lat: -34.0447, Lng: 18.4300},
		},
		{
			name:     "province centroid",
			store:    Store{Name: "Roadside", Address: "N1 off-ramp", Province: "Gauteng", Country: "South Africa"},
			wantTier: TierProvince,
			wantKey:  "Gauteng",
			want:     Coordinates{Lat: -26.2041, Lng: 28.0473},
		},
		{
			name:     "province match is exact",
			store:    Store{Name: "Roadside", Address: "N1 off-ramp", Province: "gauteng", Country: "Namibia"},
			wantTier: TierCountry,
			wantKey:  "Namibia",
			want:     Coordinates{Lat: -22.5609, Lng: 17.0658},
		},
		{
			name:     "unknown country falls back to default",
			store:    Store{Name: "xyz", Address: "???", Province: "Unknown", Country: "Atlantis"},
			wantTier: TierCountry,
			wantKey:  "South Africa",
			want:     Coordinates{Lat: -33.9249, Lng: 18.4241},
		},
		{
			name:     "empty store gets default country",
			store:    Store{},
			wantTier: TierCountry,
			wantKey:  "South Africa",
			want:     Coordinates{Lat: -33.9249, Lng: 18.4241},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Locate(tt.store)
			if res.Tier != tt.wantTier || res.Key != tt.wantKey {
				t.Errorf("Locate = %s/%q, want %s/%q", res.Tier, res.Key, tt.wantTier, tt.wantKey)
			}
			if res.Coordinates != tt.want {
				t.Errorf("coordinates = %+v, want %+v", res.Coordinates, tt.want)
			}

			got := r.Resolve(tt.store)
			if got.Coordinates == nil || *got.Coordinates != tt.want {
				t.Fatalf("Resolve coordinates = %v, want %+v", got.Coordinates, tt.want)
			}
			if !got.HasCoordinates || got.Resolution != tt.wantTier {
				t.Errorf("HasCoordinates=%v Resolution=%s", got.HasCoordinates, got.Resolution)
			}
			if tt.store.Coordinates != nil {
				t.Error("Resolve modified its input")
			}
		})
	}
}

func TestResolveKeepsExistingCoordinates(t *testing.T) {
	r := NewResolver(DefaultRegion())
	c := Coordinates{Lat: -25.7602088, Lng: 28.2444596}
	s := Store{Name: "Tokai", Address: "Tokai", Coordinates: &c, HasCoordinates: true, Resolution: TierSource}

	got := r.Resolve(s)
	if got.Coordinates != &c || got.Resolution != TierSource {
		t.Errorf("Resolve replaced existing coordinates: %+v (%s)", got.Coordinates, got.Resolution)
	}
}

func TestResolverTotality(t *testing.T) {
	r := NewResolver(DefaultRegion())
	garbage := []string{"", " ", "\x00", "🙂🙂", "NaN", "All", "unknown", "South africa", "-33.9,18.4"}
	for _, a := range garbage {
		for _, p := range garbage {
			for _, c := range garbage {
				s := r.Resolve(Store{Name: a, Address: a, Province: p, Country: c})
				if s.Coordinates == nil || !s.HasCoordinates {
					t.Fatalf("store %q/%q/%q left without coordinates", a, p, c)
				}
				if math.IsNaN(s.Coordinates.Lat) || math.IsInf(s.Coordinates.Lng, 0) {
					t.Fatalf("store %q/%q/%q got non-finite coordinates %+v", a, p, c, s.Coordinates)
				}
			}
		}
	}
}

func TestResolverDeterministic(t *testing.T) {
	s := Store{Name: "Kenilworth Centre", Address: "Claremont, Rondebosch, Wynberg", Province: "Western Cape"}
	first := NewResolver(DefaultRegion()).Locate(s)
	for i := 0; i < 50; i++ {
		if got := NewResolver(DefaultRegion()).Locate(s); got != first {
			t.Fatalf("run %d: %+v, want %+v", i, got, first)
		}
	}
	// kenilworth precedes claremont in the table.
	if first.Key != "kenilworth" {
		t.Errorf("key = %q, want kenilworth", first.Key)
	}
}

func TestResolverStrategiesOrder(t *testing.T) {
	var tiers []Tier
	for _, st := range NewResolver(DefaultRegion()).Strategies() {
		tiers = append(tiers, st.Tier())
	}
	want := []Tier{TierCity, TierProvince, TierCountry}
	if fmt.Sprint(tiers) != fmt.Sprint(want) {
		t.Errorf("strategies = %v, want %v", tiers, want)
	}
}

func TestCountryCentroidWithoutDefault(t *testing.T) {
	countries := []Place{{Name: "Namibia", Lat: -22.5609, Lng: 17.0658}}
	c, key, ok := NewCountryCentroid(countries, "Botswana").Locate(Store{Country: "Zambia"})
	if !ok || key != "Namibia" || c != countries[0].Coordinates() {
		t.Errorf("Locate = %+v %q %v, want first country", c, key, ok)
	}
}

func TestResolveBatch(t *testing.T) {
	r := NewResolver(DefaultRegion())
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		got, err := r.ResolveBatch(ctx, nil)
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("ResolveBatch(nil) = %v, %v", got, err)
		}
	})

	t.Run("order and content", func(t *testing.T) {
		cities := DefaultRegion().Cities
		stores := make([]Store, 1234)
		for i := range stores {
			p := cities[i%len(cities)]
			stores[i] = Store{ID: IntID(int64(i)), Name: fmt.Sprintf("store %d", i), Address: "1 Main Rd, " + p.Name}
			if i%7 == 0 {
				stores[i] = Store{ID: IntID(int64(i)), Name: "nowhere", Province: "Limpopo"}
			}
		}

		got, err := r.ResolveBatch(ctx, stores)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(stores) {
			t.Fatalf("len = %d, want %d", len(got), len(stores))
		}
		for i := range stores {
			if got[i].ID != stores[i].ID {
				t.Fatalf("position %d holds id %s", i, got[i].ID)
			}
			want := r.Resolve(stores[i])
			if *got[i].Coordinates != *want.Coordinates || got[i].Resolution != want.Resolution {
				t.Fatalf("store %d: %+v, want %+v", i, got[i].Coordinates, want.Coordinates)
			}
			if stores[i].Coordinates != nil {
				t.Fatalf("input %d was modified", i)
			}
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		got, err := r.ResolveBatch(cctx, SampleStores())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if got != nil {
			t.Errorf("got partial result of %d stores", len(got))
		}
	})
}

func BenchmarkResolveBatch(b *testing.B) {
	r := NewResolver(DefaultRegion())
	stores := make([]Store, 2000)
	for i := range stores {
		stores[i] = Store{Name: "store", Address: "Shop 4, Somewhere Mall, Windhoek", Province: "Unknown"}
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.ResolveBatch(ctx, stores); err != nil {
			b.Fatal(err)
		}
	}
}
