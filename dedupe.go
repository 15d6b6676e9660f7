package storegeo

import (
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// dedupeGeohashPrecision is ~38m x 19m: two feed records with the same name
// inside one cell are the same store.
const dedupeGeohashPrecision = 8

// Dedupe drops repeated feed records, keeping the first occurrence and the
// input order. Stores whose coordinates came from the feed are keyed by name
// and geohash; stores with looked-up or missing coordinates are keyed by id,
// since centroid coordinates say nothing about identity.
func Dedupe(stores []Store) []Store {
	seen := make(map[string]bool, len(stores))
	out := make([]Store, 0, len(stores))
	for _, s := range stores {
		key := dedupeKey(s)
		if key != "" && seen[key] {
			continue
		}
		if key != "" {
			seen[key] = true
		}
		out = append(out, s)
	}
	return out
}

func dedupeKey(s Store) string {
	if s.Coordinates != nil && (s.Resolution == TierSource || s.Resolution == TierMapURL) {
		name := strings.Join(strings.Fields(strings.ToLower(s.Name)), " ")
		return "geo:" + name + "@" + geohash.EncodeWithPrecision(s.Coordinates.Lat, s.Coordinates.Lng, dedupeGeohashPrecision)
	}
	if s.ID.IsZero() {
		return ""
	}
	return "id:" + s.ID.String()
}
