package storegeo

import (
	"testing"
)

func cityStores() []Store {
	region := DefaultRegion()
	stores := make([]Store, 0, len(region.Cities))
	for i, p := range region.Cities {
		c := p.Coordinates()
		stores = append(stores, Store{ID: IntID(int64(i)), Name: p.Name, Coordinates: &c, HasCoordinates: true})
	}
	return stores
}

func TestIndexWithinMatchesLinearScan(t *testing.T) {
	stores := cityStores()
	stores = append(stores, Store{ID: StringID("nowhere"), Name: "nowhere"})
	idx := NewIndex(stores)
	if idx.Len() != len(stores)-1 {
		t.Fatalf("Len = %d, want %d", idx.Len(), len(stores)-1)
	}

	centers := []Coordinates{
		{Lat: -34.0447, Lng: 18.4300}, // bergvliet
		{Lat: -26.1076, Lng: 28.0567}, // sandton
		{Lat: -29.8587, Lng: 31.0218}, // durban
		{Lat: -22.5609, Lng: 17.0658}, // windhoek
	}
	for _, center := range centers {
		for _, radius := range []float64{0, 1, 5, 25, 100, 400, 1500, 5000, 20100} {
			got := idx.Within(center, radius)

			want := map[string]bool{}
			for _, s := range stores {
				if s.Coordinates != nil && center.DistanceTo(*s.Coordinates) <= radius {
					want[s.ID.String()] = true
				}
			}
			if len(got) != len(want) {
				t.Errorf("center %+v radius %v: %d stores, want %d", center, radius, len(got), len(want))
				continue
			}
			for i, s := range got {
				if !want[s.ID.String()] {
					t.Errorf("center %+v radius %v: unexpected %s", center, radius, s.Name)
				}
				if s.Distance == nil {
					t.Fatalf("%s has no distance", s.Name)
				}
				if i > 0 && *s.Distance < *got[i-1].Distance {
					t.Errorf("center %+v radius %v: not sorted at %d", center, radius, i)
				}
			}
		}
	}
}

func TestIndexWithinEdgeCases(t *testing.T) {
	idx := NewIndex(cityStores())
	center := Coordinates{Lat: -34.0447, Lng: 18.4300}

	if got := idx.Within(center, -1); len(got) != 0 {
		t.Errorf("negative radius returned %d stores", len(got))
	}
	if got := NewIndex(nil).Within(center, 10); len(got) != 0 {
		t.Errorf("empty index returned %d stores", len(got))
	}
	if got := idx.Within(Coordinates{Lat: 10, Lng: -40}, 50); len(got) != 0 {
		t.Errorf("mid-Atlantic returned %d stores", len(got))
	}
	got := idx.Within(center, 0)
	if len(got) != 1 || got[0].Name != "bergvliet" {
		t.Errorf("zero radius = %v, want bergvliet", ids(got))
	}
}

func TestIndexWithinLargeRadiusStaysCoarse(t *testing.T) {
	idx := NewIndex(cityStores())
	center := Coordinates{Lat: -34.0447, Lng: 18.4300}

	tests := []struct {
		name   string
		radius float64
	}{
		{"country", 1000},
		{"continent", 3000},
		{"whole earth", 20100},
		{"beyond the antipode", 1e6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Store
			allocs := testing.AllocsPerRun(3, func() {
				got = idx.Within(center, tt.radius)
			})
			if allocs > 50000 {
				t.Errorf("radius %v: %.0f allocations per query", tt.radius, allocs)
			}
			want := 0
			for _, s := range cityStores() {
				if center.DistanceTo(*s.Coordinates) <= tt.radius {
					want++
				}
			}
			if len(got) != want {
				t.Errorf("radius %v: %d stores, want %d", tt.radius, len(got), want)
			}
		})
	}
}

func BenchmarkIndexWithin(b *testing.B) {
	idx := NewIndex(cityStores())
	center := Coordinates{Lat: -33.9249, Lng: 18.4241}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Within(center, 20)
	}
}
