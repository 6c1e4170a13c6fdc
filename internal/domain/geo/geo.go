// Package geo estimates great-circle distances between known cities.
package geo

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const earthRadiusKM = 6371.0

// ErrLoadCities is returned when a city override file cannot be used.
var ErrLoadCities = errors.New("load cities failed")

// Coord is a latitude/longitude pair in degrees.
type Coord struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Table resolves city names to coordinates. It is read-only after construction.
type Table struct {
	cities map[string]Coord
}

// Option applies a configuration option to the Table.
type Option func(*Table)

// WithCities adds or overrides entries of the built-in table.
func WithCities(cities map[string]Coord) Option {
	return func(t *Table) {
		for name, c := range cities {
			t.cities[key(name)] = c
		}
	}
}

// NewTable returns the built-in city table with options applied.
func NewTable(opts ...Option) *Table {
	t := &Table{cities: make(map[string]Coord, len(builtin))}
	for name, c := range builtin {
		t.cities[name] = c
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lookup returns the coordinates of city. Suffixes after a comma ("Hamburg, DE") are ignored.
func (t *Table) Lookup(city string) (Coord, bool) {
	if t == nil {
		return Coord{}, false
	}
	c, ok := t.cities[key(city)]
	return c, ok
}

// Distance returns the great-circle distance in km. ok is false when either city is unknown.
func (t *Table) Distance(origin, dest string) (km float64, ok bool) {
	a, okA := t.Lookup(origin)
	b, okB := t.Lookup(dest)
	if !okA || !okB {
		return 0, false
	}
	return Haversine(a, b), true
}

// Len returns the number of known cities.
func (t *Table) Len() int { return len(t.cities) }

// Haversine computes the great-circle distance between two coordinates in km.
func Haversine(a, b Coord) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

type citiesFile struct {
	Cities map[string]Coord `yaml:"cities"`
}

// LoadFile reads a YAML document of the form
//
//	cities:
//	  lagos: {lat: 6.52, lon: 3.38}
func LoadFile(path string) (map[string]Coord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCities, err)
	}
	var doc citiesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadCities, path, err)
	}
	for name, c := range doc.Cities {
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return nil, fmt.Errorf("%w: %s: coordinates out of range for %q", ErrLoadCities, path, name)
		}
	}
	return doc.Cities, nil
}

func key(city string) string {
	if i := strings.IndexByte(city, ','); i >= 0 {
		city = city[:i]
	}
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}
