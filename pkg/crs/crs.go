// Package crs describes the coordinate reference systems layers are
// declared in. Only the bounded-domain part matters to the indexes: the
// curve encoders need finite axis ranges to build their tile grid.
package crs

import (
	"fmt"
	"math"
	"strings"

	"geoindex/pkg/common"
)

// Axis is one coordinate axis. Infinite bounds mean the axis is unbounded.
type Axis struct {
	Name string
	Min  float64
	Max  float64
}

type CRS struct {
	Name string
	Axes []Axis
}

func (c *CRS) Dimension() int {
	return len(c.Axes)
}

// Bounds returns the 2D domain of the first two axes. Unbounded axes fall
// back to [0,1] so that a curve can still be built over them.
func (c *CRS) Bounds() common.Envelope {
	if len(c.Axes) < 2 {
		return common.Envelope{MaxX: 1, MaxY: 1}
	}
	return common.Envelope{
		MinX: axisMin(c.Axes[0]),
		MaxX: axisMax(c.Axes[0]),
		MinY: axisMin(c.Axes[1]),
		MaxY: axisMax(c.Axes[1]),
	}
}

func axisMin(a Axis) float64 {
	if math.IsInf(a.Min, 0) || math.IsNaN(a.Min) {
		return 0
	}
	return a.Min
}

func axisMax(a Axis) float64 {
	if math.IsInf(a.Max, 0) || math.IsNaN(a.Max) {
		return 1
	}
	return a.Max
}

func (c *CRS) String() string {
	return fmt.Sprintf("CRS(%s, %dD)", c.Name, c.Dimension())
}

// New2D declares a bounded planar CRS.
func New2D(name string, bounds common.Envelope) *CRS {
	return &CRS{
		Name: name,
		Axes: []Axis{
			{Name: "x", Min: bounds.MinX, Max: bounds.MaxX},
			{Name: "y", Min: bounds.MinY, Max: bounds.MaxY},
		},
	}
}

var (
	WGS84 = &CRS{
		Name: "WGS84",
		Axes: []Axis{
			{Name: "longitude", Min: -180, Max: 180},
			{Name: "latitude", Min: -90, Max: 90},
		},
	}

	Cartesian = &CRS{
		Name: "cartesian",
		Axes: []Axis{
			{Name: "x", Min: math.Inf(-1), Max: math.Inf(1)},
			{Name: "y", Min: math.Inf(-1), Max: math.Inf(1)},
		},
	}

	WGS84Height = &CRS{
		Name: "WGS84-3D",
		Axes: []Axis{
			{Name: "longitude", Min: -180, Max: 180},
			{Name: "latitude", Min: -90, Max: 90},
			{Name: "height", Min: math.Inf(-1), Max: math.Inf(1)},
		},
	}
)

var known = map[string]*CRS{
	"wgs84":     WGS84,
	"epsg:4326": WGS84,
	"cartesian": Cartesian,
	"wgs84-3d":  WGS84Height,
	"epsg:4979": WGS84Height,
}

// Lookup resolves a CRS by case-insensitive name.
func Lookup(name string) (*CRS, bool) {
	c, ok := known[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}
