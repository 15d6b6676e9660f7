package storegeo

import (
	"sort"

	"github.com/golang/geo/s2"
)

// s2CellLevel is the granularity of the store index. Level 10 cells are
// roughly 10km across, a few suburbs each.
const s2CellLevel = 10

// maxCoverCells bounds the number of cells used to cover a search radius.
// Large radii get coarser cells instead of more of them.
const maxCoverCells = 256

// Index is an S2 cell index over coordinate-bearing stores for radius
// queries. It is immutable and safe for concurrent use.
type Index struct {
	stores    []Store
	cellIndex map[s2.CellID][]int
	cellIDs   []s2.CellID // keys of cellIndex, sorted
}

// NewIndex indexes the stores that have coordinates.
func NewIndex(stores []Store) *Index {
	idx := &Index{cellIndex: make(map[s2.CellID][]int)}
	for _, s := range stores {
		if s.Coordinates == nil {
			continue
		}
		cell := s2.CellIDFromLatLng(s.Coordinates.latLng()).Parent(s2CellLevel)
		idx.cellIndex[cell] = append(idx.cellIndex[cell], len(idx.stores))
		idx.stores = append(idx.stores, s)
	}
	for cell := range idx.cellIndex {
		idx.cellIDs = append(idx.cellIDs, cell)
	}
	sort.Slice(idx.cellIDs, func(i, j int) bool { return idx.cellIDs[i] < idx.cellIDs[j] })
	return idx
}

// Len returns the number of indexed stores.
func (idx *Index) Len() int { return len(idx.stores) }

// Within returns the stores at most radiusKm from center, annotated with
// their distance and ranked nearest first. Stores at equal distance keep
// their indexing order.
func (idx *Index) Within(center Coordinates, radiusKm float64) []Store {
	if radiusKm < 0 || !center.IsFinite() || len(idx.stores) == 0 {
		return []Store{}
	}

	capRegion := s2.CapFromCenterAngle(s2.PointFromLatLng(center.latLng()), kmToAngle(radiusKm))
	coverer := &s2.RegionCoverer{MinLevel: 0, MaxLevel: s2CellLevel, MaxCells: maxCoverCells}

	// Covering cells are never finer than the index level, so an indexed
	// cell lies in a covering cell exactly when its id is in the cell's range.
	var hits []int
	seen := make(map[int]bool)
	for _, cover := range coverer.Covering(capRegion) {
		lo, hi := cover.RangeMin(), cover.RangeMax()
		start := sort.Search(len(idx.cellIDs), func(i int) bool { return idx.cellIDs[i] >= lo })
		for _, cell := range idx.cellIDs[start:] {
			if cell > hi {
				break
			}
			for _, i := range idx.cellIndex[cell] {
				if seen[i] {
					continue
				}
				seen[i] = true
				if center.DistanceTo(*idx.stores[i].Coordinates) <= radiusKm {
					hits = append(hits, i)
				}
			}
		}
	}

	// Restore indexing order before ranking so ties are deterministic.
	sort.Ints(hits)
	matched := make([]Store, len(hits))
	for n, i := range hits {
		matched[n] = idx.stores[i]
	}
	return RankByDistance(AnnotateDistance(matched, &center))
}
