package storegeo

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed regions/*.toml
var regionData embed.FS

// defaultRegionFile is the embedded lookup table used when a deployment does
// not supply its own.
const defaultRegionFile = "regions/southern_africa.toml"

// Place is a named lookup-table entry with a representative coordinate.
type Place struct {
	Name string  `toml:"name" yaml:"name" validate:"required"`
	Lat  float64 `toml:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `toml:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// Coordinates returns the place's coordinate.
func (p Place) Coordinates() Coordinates {
	return Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// Region holds the static lookup tables for one deployment. All three tables
// are ordered; Cities order decides which locality wins when several appear
// in the same address.
type Region struct {
	Name           string  `toml:"name" yaml:"name" validate:"required"`
	DefaultCountry string  `toml:"default_country" yaml:"default_country" validate:"required"`
	Bounds         Bounds  `toml:"bounds" yaml:"bounds"`
	Cities         []Place `toml:"cities" yaml:"cities" validate:"dive"`
	Provinces      []Place `toml:"provinces" yaml:"provinces" validate:"dive"`
	Countries      []Place `toml:"countries" yaml:"countries" validate:"required,min=1,dive"`
}

// RegionFormat names a region file encoding.
type RegionFormat string

const (
	RegionFormatTOML RegionFormat = "toml"
	RegionFormatYAML RegionFormat = "yaml"
)

var structValidator = sync.OnceValue(func() *validator.Validate {
	return validator.New()
})

var defaultRegion = sync.OnceValue(func() *Region {
	data, err := regionData.ReadFile(defaultRegionFile)
	if err != nil {
		panic(fmt.Sprintf("reading embedded region %s: %v", defaultRegionFile, err))
	}
	r, err := ParseRegion(data, RegionFormatTOML)
	if err != nil {
		panic(fmt.Sprintf("parsing embedded region %s: %v", defaultRegionFile, err))
	}
	return r
})

// DefaultRegion returns a copy of the embedded Southern Africa tables.
func DefaultRegion() *Region {
	return defaultRegion().Clone()
}

// LoadRegion reads a region file. The format is chosen by extension:
// .toml, or .yaml/.yml.
func LoadRegion(path string) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region file %s: %w", path, err)
	}

	var format RegionFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		format = RegionFormatTOML
	case ".yaml", ".yml":
		format = RegionFormatYAML
	default:
		return nil, fmt.Errorf("region file %s: unsupported extension %q", path, filepath.Ext(path))
	}

	r, err := ParseRegion(data, format)
	if err != nil {
		return nil, fmt.Errorf("region file %s: %w", path, err)
	}
	return r, nil
}

// ParseRegion decodes and validates region tables.
func ParseRegion(data []byte, format RegionFormat) (*Region, error) {
	r := &Region{}
	switch format {
	case RegionFormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(r); err != nil {
			return nil, fmt.Errorf("decoding toml: %w", err)
		}
	case RegionFormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(r); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported region format %q", format)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks field ranges and the table invariants the resolver relies
// on: every entry lies inside Bounds, city keys are lowercase, keys are
// unique per table, and DefaultCountry has a country entry.
func (r *Region) Validate() error {
	if err := structValidator().Struct(r); err != nil {
		return fmt.Errorf("invalid region: %w", err)
	}

	var errs []error
	check := func(table string, places []Place, lowercase bool) {
		seen := make(map[string]bool, len(places))
		for i, p := range places {
			if seen[p.Name] {
				errs = append(errs, fmt.Errorf("%s[%d] %q: duplicate name", table, i, p.Name))
			}
			seen[p.Name] = true

			if lowercase && p.Name != strings.ToLower(p.Name) {
				errs = append(errs, fmt.Errorf("%s[%d] %q: name must be lowercase", table, i, p.Name))
			}
			if strings.TrimSpace(p.Name) != p.Name {
				errs = append(errs, fmt.Errorf("%s[%d] %q: name has surrounding spaces", table, i, p.Name))
			}
			if !r.Bounds.Contains(p.Coordinates()) {
				errs = append(errs, fmt.Errorf("%s[%d] %q: (%v, %v) outside region bounds", table, i, p.Name, p.Lat, p.Lng))
			}
		}
	}
	check("cities", r.Cities, true)
	check("provinces", r.Provinces, false)
	check("countries", r.Countries, false)

	if _, ok := r.country(r.DefaultCountry); !ok {
		errs = append(errs, fmt.Errorf("default country %q has no entry in countries", r.DefaultCountry))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid region %q: %w", r.Name, errors.Join(errs...))
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Region) Clone() *Region {
	c := *r
	c.Cities = append([]Place(nil), r.Cities...)
	c.Provinces = append([]Place(nil), r.Provinces...)
	c.Countries = append([]Place(nil), r.Countries...)
	return &c
}

func (r *Region) country(name string) (Place, bool) {
	for _, p := range r.Countries {
		if p.Name == name {
			return p, true
		}
	}
	return Place{}, false
}
