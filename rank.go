package storegeo

import "sort"

// DefaultNearestLimit is the number of stores Nearest returns when limit is
// not positive.
const DefaultNearestLimit = 10

// AnnotateDistance returns stores with Distance set from user for every store
// that has coordinates. Stores without coordinates get no distance. When
// user is nil the input slice is returned as is.
//
// A new slice is built and the input is never modified, so a caller never
// observes a partly annotated list.
func AnnotateDistance(stores []Store, user *Coordinates) []Store {
	if user == nil {
		return stores
	}
	out := make([]Store, len(stores))
	for i, s := range stores {
		if s.Coordinates == nil {
			s.Distance = nil
		} else {
			d := user.DistanceTo(*s.Coordinates)
			s.Distance = &d
		}
		out[i] = s
	}
	return out
}

// RankByDistance returns a copy of stores sorted by ascending distance.
// Stores without a distance follow all stores that have one. The sort is
// stable: ties and distance-less stores keep their input order.
func RankByDistance(stores []Store) []Store {
	out := append([]Store(nil), stores...)
	sort.SliceStable(out, func(i, j int) bool {
		di, iok := out[i].DistanceKm()
		dj, jok := out[j].DistanceKm()
		switch {
		case iok && jok:
			return di < dj
		case iok:
			return true
		default:
			return false
		}
	})
	return out
}

// Nearest returns up to limit coordinate-bearing stores closest to user,
// annotated with their distance.
func Nearest(stores []Store, user Coordinates, limit int) []Store {
	if limit <= 0 {
		limit = DefaultNearestLimit
	}
	located := make([]Store, 0, len(stores))
	for _, s := range stores {
		if s.Coordinates != nil {
			located = append(located, s)
		}
	}
	ranked := RankByDistance(AnnotateDistance(located, &user))
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
