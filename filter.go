package storegeo

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// AllRegions is the region value that disables the province restriction.
const AllRegions = "All"

// maxFuzzyDistance caps FilterOptions.FuzzyDistance; larger edit distances
// match almost any short word.
const maxFuzzyDistance = 3

// minFuzzyQueryLen is the shortest query that fuzzy matching applies to.
const minFuzzyQueryLen = 3

// FilterOptions tunes FilterStores.
type FilterOptions struct {
	// FuzzyDistance is the maximum edit distance between the query and a
	// single word of a searched field. 0 disables fuzzy matching.
	FuzzyDistance int
}

// FilterStores returns the stores matching both region and query, in their
// original order.
//
// region matches everything when it equals AllRegions and otherwise must
// equal the store's province exactly. A blank query matches everything;
// otherwise the case-folded query must be a substring of the name, address,
// province, category, country, or one of the search keywords.
func FilterStores(stores []Store, query, region string, opts ...FilterOptions) []Store {
	options := FilterOptions{}
	if len(opts) > 0 {
		options = opts[0]
	}
	options.FuzzyDistance = max(0, min(options.FuzzyDistance, maxFuzzyDistance))

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Store, 0, len(stores))
	for _, s := range stores {
		if region != AllRegions && s.Province != region {
			continue
		}
		if q != "" && !matchesQuery(s, q, options) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// searchFields lists the text fields of s in match order.
func searchFields(s Store) []string {
	return []string{s.Name, s.Address, s.Province, string(s.Category), s.Country}
}

func matchesQuery(s Store, q string, opts FilterOptions) bool {
	for _, f := range searchFields(s) {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	for _, kw := range s.SearchKeywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}

	if opts.FuzzyDistance == 0 || len([]rune(q)) < minFuzzyQueryLen {
		return false
	}
	for _, f := range append(searchFields(s), s.SearchKeywords...) {
		for _, word := range strings.FieldsFunc(strings.ToLower(f), isWordSeparator) {
			if levenshtein.ComputeDistance(q, word) <= opts.FuzzyDistance {
				return true
			}
		}
	}
	return false
}

func isWordSeparator(r rune) bool {
	switch r {
	case ' ', ',', '-', '/', '(', ')', '.', '\t':
		return true
	}
	return false
}

// Provinces returns AllRegions followed by the distinct non-empty provinces
// of stores in sorted order.
func Provinces(stores []Store) []string {
	seen := make(map[string]bool)
	var provinces []string
	for _, s := range stores {
		if s.Province == "" || seen[s.Province] {
			continue
		}
		seen[s.Province] = true
		provinces = append(provinces, s.Province)
	}
	sort.Strings(provinces)
	return append([]string{AllRegions}, provinces...)
}
