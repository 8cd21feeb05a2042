package extraction

import (
	"fmt"
	"math"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// IndexRange is an inclusive span [Start, End] of indices into a coordinate vector.
type IndexRange struct {
	Start int
	End   int
}

// Count returns the number of indices in the span.
func (r IndexRange) Count() int {
	return r.End - r.Start + 1
}

func (r IndexRange) String() string {
	return fmt.Sprintf("[%d:%d]", r.Start, r.End)
}

// Axes holds the full coordinate vectors of a dataset.
type Axes struct {
	Lat  []float64
	Lon  []float64
	Time []float64 // days since model.Epoch
}

// Selection is the resolved index span on every axis.
type Selection struct {
	Lat  IndexRange
	Lon  IndexRange
	Time IndexRange
}

// Hyperslab converts the selection to a contiguous block read.
func (s Selection) Hyperslab() Hyperslab {
	return Hyperslab{
		Start:  [3]int{s.Time.Start, s.Lat.Start, s.Lon.Start},
		Count:  [3]int{s.Time.Count(), s.Lat.Count(), s.Lon.Count()},
		Stride: [3]int{1, 1, 1},
	}
}

// Resolve maps validated bounds onto index spans of axes.
func Resolve(axes Axes, bounds model.GeoTimeBounds) (Selection, error) {
	var sel Selection
	var err error

	if sel.Lat, err = ResolveAxis(AxisLat, axes.Lat, bounds.Lat); err != nil {
		return Selection{}, err
	}
	if sel.Lon, err = ResolveAxis(AxisLon, axes.Lon, bounds.Lon); err != nil {
		return Selection{}, err
	}

	start, end := bounds.TimeWindow()
	days := model.Range[float64]{Lower: model.TimeToDays(start), Upper: model.TimeToDays(end)}
	if sel.Time, err = ResolveAxis(AxisTime, axes.Time, days); err != nil {
		return Selection{}, err
	}

	return sel, nil
}

// ResolveAxis finds the smallest span holding every index whose coordinate
// lies in bounds. The vector may be stored in any order; the span is taken
// from the first to the last matching index.
func ResolveAxis(axis Axis, values []float64, bounds model.Range[float64]) (IndexRange, error) {
	first, last := -1, -1
	for i, v := range values {
		if math.IsNaN(v) || !bounds.Contains(v) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}

	if first < 0 {
		return IndexRange{}, &EmptySelectionError{Axis: axis, Lower: bounds.Lower, Upper: bounds.Upper}
	}
	return IndexRange{Start: first, End: last}, nil
}
