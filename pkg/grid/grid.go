package grid

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Ramsey-B/poppy/pkg/geo"
	"github.com/Ramsey-B/poppy/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Point is a named search center of the collection grid
type Point struct {
	Name   string  `yaml:"name" json:"name"`
	Region string  `yaml:"region" json:"region"`
	Lat    float64 `yaml:"lat" json:"lat"`
	Lng    float64 `yaml:"lng" json:"lng"`
}

// Geo returns the point's coordinate.
func (p Point) Geo() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

// Grid is an ordered, immutable list of grid points
type Grid struct {
	points []Point
}

// Default returns the built-in Seoul grid.
func Default() *Grid {
	g, err := New(seoul)
	if err != nil {
		panic(err)
	}
	return g
}

// New validates the points and builds a grid. Names must be unique.
func New(points []Point) (*Grid, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("grid has no points")
	}

	seen := make(map[string]struct{}, len(points))
	out := make([]Point, 0, len(points))
	for i, p := range points {
		p.Name = strings.TrimSpace(p.Name)
		p.Region = strings.ToLower(strings.TrimSpace(p.Region))
		if p.Name == "" {
			return nil, fmt.Errorf("grid point %d has no name", i)
		}
		if _, ok := seen[p.Name]; ok {
			return nil, fmt.Errorf("duplicate grid point %q", p.Name)
		}
		if err := p.Geo().Validate(); err != nil {
			return nil, fmt.Errorf("grid point %q: %w", p.Name, err)
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	return &Grid{points: out}, nil
}

// Load reads a grid from a YAML file of the form:
//
//	points:
//	  - name: gangnam-station
//	    region: gangnam
//	    lat: 37.4979
//	    lng: 127.0276
func Load(path string) (*Grid, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid file: %w", err)
	}

	var file struct {
		Points []Point `yaml:"points"`
	}
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("failed to parse grid file %s: %w", path, err)
	}
	return New(file.Points)
}

// All returns a copy of every point in order.
func (g *Grid) All() []Point {
	out := make([]Point, len(g.points))
	copy(out, g.points)
	return out
}

// Len returns the number of points.
func (g *Grid) Len() int {
	return len(g.points)
}

// Region returns the points of one region in order. An empty region selects
// the whole grid; an unknown region is a validation error.
func (g *Grid) Region(region string) ([]Point, error) {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		return g.All(), nil
	}

	var out []Point
	for _, p := range g.points {
		if p.Region == region {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, validation.FieldError("region", "unknown region %q, expected one of [%s]", region, strings.Join(g.Regions(), ", "))
	}
	return out, nil
}

// Regions returns the sorted distinct region names.
func (g *Grid) Regions() []string {
	set := map[string]struct{}{}
	for _, p := range g.points {
		if p.Region != "" {
			set[p.Region] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
