package storegeo

import (
	"encoding/json"
	"testing"
)

func TestStoreIDJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    StoreID
		wantOut string
	}{
		{`42`, IntID(42), `42`},
		{`"abc-1"`, StringID("abc-1"), `"abc-1"`},
		{`"42"`, StringID("42"), `"42"`},
		{`null`, StoreID{}, `""`},
		{`1e3`, StoreID{value: "1e3", numeric: true}, `1e3`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id StoreID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatal(err)
			}
			if id != tt.want {
				t.Errorf("Unmarshal(%s) = %#v, want %#v", tt.in, id, tt.want)
			}
			out, err := json.Marshal(id)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tt.wantOut {
				t.Errorf("Marshal = %s, want %s", out, tt.wantOut)
			}
		})
	}

	var id StoreID
	if err := json.Unmarshal([]byte(`[1]`), &id); err == nil {
		t.Error("expected error for array id")
	}
}

func TestStoreCoordinatesInvariant(t *testing.T) {
	var s Store
	s.SetCoordinates(Coordinates{Lat: -34, Lng: 18}, TierCity)
	if !s.HasCoordinates || s.Coordinates == nil || s.Resolution != TierCity {
		t.Errorf("after SetCoordinates: %+v", s)
	}
	d := 3.0
	s.Distance = &d
	s.ClearCoordinates()
	if s.HasCoordinates || s.Coordinates != nil || s.Distance != nil || s.Resolution != "" {
		t.Errorf("after ClearCoordinates: %+v", s)
	}
}

func TestStoreDistanceJSON(t *testing.T) {
	zero := 0.0
	out, _ := json.Marshal(Store{Name: "a", Distance: &zero})
	var m map[string]any
	json.Unmarshal(out, &m)
	if v, ok := m["distance"]; !ok || v != 0.0 {
		t.Errorf("zero distance lost: %s", out)
	}

	out, _ = json.Marshal(Store{Name: "b"})
	m = nil
	json.Unmarshal(out, &m)
	if _, ok := m["distance"]; ok {
		t.Errorf("unknown distance encoded: %s", out)
	}
}

func TestSampleStores(t *testing.T) {
	bounds := DefaultRegion().Bounds
	for _, s := range SampleStores() {
		if s.Coordinates == nil || !s.HasCoordinates || !bounds.Contains(*s.Coordinates) {
			t.Errorf("sample store %s has bad coordinates %+v", s.Name, s.Coordinates)
		}
	}
}

func TestCategoryIcon(t *testing.T) {
	if CategoryIcon(CategoryPetrolStation) != "⛽" {
		t.Error("petrol station icon")
	}
	if CategoryIcon("") != "☕" || CategoryIcon("unknown") != "☕" {
		t.Error("default icon")
	}
}
