package storegeo

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"sync"
)

// mapURLPatterns extract "lat,lng" pairs from map links, most precise first.
// The first pattern that yields an in-bounds coordinate wins.
var mapURLPatterns = sync.OnceValue(func() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`@(-?\d+\.?\d*),(-?\d+\.?\d*)`),
		regexp.MustCompile(`3d(-?\d+\.?\d*)!4d(-?\d+\.?\d*)`),
		regexp.MustCompile(`lat=(-?\d+\.?\d*).*lng=(-?\d+\.?\d*)`),
		regexp.MustCompile(`latitude=(-?\d+\.?\d*).*longitude=(-?\d+\.?\d*)`),
		regexp.MustCompile(`ll=(-?\d+\.?\d*)(?:,|%2C)(-?\d+\.?\d*)`),
		regexp.MustCompile(`q=(-?\d+\.?\d*),(-?\d+\.?\d*)`),
		regexp.MustCompile(`center=(-?\d+\.?\d*),(-?\d+\.?\d*)`),
	}
})

// CoordinatesFromMapURL extracts a coordinate from a Google, Apple or Waze
// map link. Matches outside bounds are skipped.
func CoordinatesFromMapURL(rawURL string, bounds Bounds) (Coordinates, bool) {
	if rawURL == "" {
		return Coordinates{}, false
	}
	for _, re := range mapURLPatterns() {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[2], 64)
		if errLat != nil || errLng != nil {
			continue
		}
		c := Coordinates{Lat: lat, Lng: lng}
		if bounds.Contains(c) {
			return c, true
		}
	}
	return Coordinates{}, false
}

// Links holds navigation deep links for a store.
type Links struct {
	Google string `json:"google"`
	Waze   string `json:"waze"`
	Apple  string `json:"apple"`
}

// MapLinks builds deep links that open s in Google Maps, Waze and Apple
// Maps. Without coordinates the links search for the name and address.
func MapLinks(s Store) Links {
	if c := s.Coordinates; c != nil {
		return Links{
			Google: fmt.Sprintf("https://www.google.com/maps/place/%s/@%v,%v,15z", url.PathEscape(s.Name), c.Lat, c.Lng),
			Waze:   fmt.Sprintf("https://www.waze.com/ul?ll=%v%%2C%v&navigate=yes&zoom=17", c.Lat, c.Lng),
			Apple:  fmt.Sprintf("http://maps.apple.com/?q=%s&ll=%v,%v&z=15", url.QueryEscape(s.Name), c.Lat, c.Lng),
		}
	}
	query := s.Name + ", " + s.Address
	return Links{
		Google: "https://www.google.com/maps/search/" + url.PathEscape(query),
		Waze:   "https://www.waze.com/ul?q=" + url.QueryEscape(query) + "&navigate=yes",
		Apple:  "http://maps.apple.com/?q=" + url.QueryEscape(query),
	}
}
