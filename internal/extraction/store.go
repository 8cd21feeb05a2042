package extraction

import (
	"context"
	"fmt"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// Axis names a coordinate variable of a dataset.
type Axis string

const (
	AxisLat  Axis = "lat"
	AxisLon  Axis = "lon"
	AxisTime Axis = "time"
)

// Hyperslab is a strided block selection in the store's native dimension
// order: time, lat, lon.
type Hyperslab struct {
	Start  [3]int
	Count  [3]int
	Stride [3]int
}

// Len returns the number of elements the selection covers.
func (h Hyperslab) Len() int {
	return h.Count[0] * h.Count[1] * h.Count[2]
}

// Constraint renders the selection as an inclusive DAP2 index constraint,
// e.g. "[0:1:11][10:1:20][5:1:9]".
func (h Hyperslab) Constraint() string {
	var out string
	for i := range 3 {
		stride := h.Stride[i]
		if stride < 1 {
			stride = 1
		}
		last := h.Start[i] + (h.Count[i]-1)*stride
		out += fmt.Sprintf("[%d:%d:%d]", h.Start[i], stride, last)
	}
	return out
}

// ArrayStore gives bounded access to one gridded dataset per variable.
// Implementations return missing values as NaN and values already unpacked
// with scale_factor and add_offset.
type ArrayStore interface {
	// ReadAxis returns the full coordinate vector of axis. Time is expressed
	// in days since model.Epoch.
	ReadAxis(ctx context.Context, variable model.Variable, axis Axis) ([]float64, error)
	// ReadHyperslab returns the selected block flattened in time, lat, lon order.
	ReadHyperslab(ctx context.Context, variable model.Variable, sel Hyperslab) ([]float64, error)
}
