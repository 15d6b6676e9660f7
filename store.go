package storegeo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StoreID identifies a store within a dataset snapshot. Feeds use either JSON
// numbers or strings; the original kind is kept when re-encoding.
type StoreID struct {
	value   string
	numeric bool
}

// IntID returns a numeric StoreID.
func IntID(n int64) StoreID {
	return StoreID{value: strconv.FormatInt(n, 10), numeric: true}
}

// StringID returns a string StoreID.
func StringID(s string) StoreID {
	return StoreID{value: s}
}

// String returns the id's textual form.
func (id StoreID) String() string { return id.value }

// IsZero reports whether the id is unset.
func (id StoreID) IsZero() bool { return id.value == "" }

// MarshalJSON implements json.Marshaler.
func (id StoreID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *StoreID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = StoreID{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("store id: %w", err)
		}
		*id = StringID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("store id: %w", err)
		}
		*id = StoreID{value: n.String(), numeric: true}
	}
	return nil
}

// Category is a display tag for a store. It does not affect ranking.
type Category string

const (
	CategoryCafe             Category = "cafe"
	CategoryFreshStop        Category = "freshstop"
	CategoryFoodLoversMarket Category = "food_lovers_market"
	CategoryPetrolStation    Category = "petrol_station"
	CategoryBookstore        Category = "bookstore"
	CategoryShoppingCenter   Category = "shopping_center"
)

var categoryIcons = map[Category]string{
	CategoryFreshStop:        "🛒",
	CategoryFoodLoversMarket: "🛍️",
	CategoryPetrolStation:    "⛽",
	CategoryBookstore:        "📚",
	CategoryShoppingCenter:   "🏪",
}

// CategoryIcon returns the icon for a category, a coffee cup by default.
func CategoryIcon(c Category) string {
	if icon, ok := categoryIcons[c]; ok {
		return icon
	}
	return "☕"
}

// Tier names the lookup step that produced a store's coordinate.
type Tier string

const (
	TierSource   Tier = "source"   // supplied by the feed
	TierMapURL   Tier = "map_url"  // recovered from the store's map link
	TierCity     Tier = "city"     // exact city/suburb match
	TierProvince Tier = "province" // province centroid
	TierCountry  Tier = "country"  // country centroid or deployment default
)

// Store is a single store record.
//
// HasCoordinates always mirrors Coordinates != nil. Distance is nil when no
// user location is known; a zero distance means the user is at the store.
type Store struct {
	ID             StoreID      `json:"id"`
	Name           string       `json:"name"`
	Address        string       `json:"address"`
	Province       string       `json:"province,omitempty"`
	Country        string       `json:"country,omitempty"`
	Category       Category     `json:"category,omitempty"`
	Coordinates    *Coordinates `json:"coordinates,omitempty"`
	HasCoordinates bool         `json:"hasCoordinates"`
	Distance       *float64     `json:"distance,omitempty"`
	SearchKeywords []string     `json:"searchKeywords,omitempty"`
	Hours          string       `json:"hours,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	MapURL         string       `json:"mapUrl,omitempty"`
	Resolution     Tier         `json:"resolution,omitempty"`
}

// SetCoordinates assigns c and keeps HasCoordinates in step.
func (s *Store) SetCoordinates(c Coordinates, tier Tier) {
	s.Coordinates = &c
	s.HasCoordinates = true
	s.Resolution = tier
}

// ClearCoordinates removes the coordinate and any derived distance.
func (s *Store) ClearCoordinates() {
	s.Coordinates = nil
	s.HasCoordinates = false
	s.Distance = nil
	s.Resolution = ""
}

// DistanceKm returns the annotated distance and whether it is known.
func (s Store) DistanceKm() (float64, bool) {
	if s.Distance == nil {
		return 0, false
	}
	return *s.Distance, true
}

// SampleStores returns the bundled dataset shown when neither the cache nor
// the network can supply stores.
func SampleStores() []Store {
	return []Store{
		{
			ID:             IntID(1),
			Name:           "Twenty on Vineyard",
			Address:        "20 Vineyard Rd, Claremont, Cape Town, 7708",
			Province:       "Western Cape",
			Country:        "South Africa",
			Category:       CategoryCafe,
			Coordinates:    &Coordinates{Lat: -33.9793815, Lng: 18.4614803},
			HasCoordinates: true,
			Hours:          "Mon-Sun: 6:00 AM - 6:00 PM",
			Phone:          "+27 21 671 1234",
			Resolution:     TierSource,
		},
		{
			ID:             IntID(2),
			Name:           "45th Cutting FreshStop",
			Address:        "928 King Cetshwayo Hwy, Sherwood, Durban, 4091",
			Province:       "KwaZulu-Natal",
			Country:        "South Africa",
			Category:       CategoryFreshStop,
			Coordinates:    &Coordinates{Lat: -29.8328006, Lng: 30.9670958},
			HasCoordinates: true,
			Hours:          "Mon-Sun: 5:00 AM - 10:00 PM",
			Phone:          "+27 31 463 1234",
			Resolution:     TierSource,
		},
		{
			ID:             IntID(3),
			Name:           "A Club FreshStop",
			Address:        "Gauteng, South Africa",
			Province:       "Gauteng",
			Country:        "South Africa",
			Category:       CategoryFreshStop,
			Coordinates:    &Coordinates{Lat: -25.7602088, Lng: 28.2444596},
			HasCoordinates: true,
			Hours:          "Mon-Sun: 5:00 AM - 10:00 PM",
			Phone:          "+27 11 234 5678",
			Resolution:     TierSource,
		},
	}
}
