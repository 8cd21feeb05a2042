package model

import (
	"fmt"
	"time"
)

// Range is an inclusive interval [Lower, Upper] with Lower <= Upper.
type Range[T int | float64] struct {
	Lower T `json:"lower"`
	Upper T `json:"upper"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range[T]) Contains(v T) bool {
	return v >= r.Lower && v <= r.Upper
}

func (r Range[T]) String() string {
	return fmt.Sprintf("[%v, %v]", r.Lower, r.Upper)
}

// GeoTimeBounds is a validated extraction box: degrees for latitude and
// longitude, calendar years and months (1-12) for time.
type GeoTimeBounds struct {
	Lat    Range[float64] `json:"lat"`
	Lon    Range[float64] `json:"lon"`
	Years  Range[int]     `json:"years"`
	Months Range[int]     `json:"months"`
}

// TimeWindow returns the first day of the first and last requested months.
func (b GeoTimeBounds) TimeWindow() (start, end time.Time) {
	start = time.Date(b.Years.Lower, time.Month(b.Months.Lower), 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(b.Years.Upper, time.Month(b.Months.Upper), 1, 0, 0, 0, 0, time.UTC)
	return start, end
}

// Extent returns the geographic rectangle covered by the bounds.
func (b GeoTimeBounds) Extent() Extent {
	return Extent{West: b.Lon.Lower, South: b.Lat.Lower, East: b.Lon.Upper, North: b.Lat.Upper}
}

// GridSpacing is the TerraClimate cell size in degrees (1/24°, about 4 km).
const GridSpacing = 1.0 / 24

// Extent is a WGS84 bounding rectangle in degrees.
type Extent struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Center returns the midpoint of the rectangle as (lat, lon).
func (e Extent) Center() (lat, lon float64) {
	return (e.South + e.North) / 2, (e.West + e.East) / 2
}
