package extraction

import "math"

// Packing holds the CF packing attributes of a variable: values equal to one
// of Missing are absent, the rest are stored as (physical-AddOffset)/ScaleFactor.
type Packing struct {
	Missing     []float64
	ScaleFactor float64
	AddOffset   float64
}

// NewPacking returns the identity packing.
func NewPacking() Packing {
	return Packing{ScaleFactor: 1}
}

// Unpack replaces missing values with NaN and applies scale and offset in place.
func (p Packing) Unpack(values []float64) {
	for i, v := range values {
		if p.IsMissing(v) {
			values[i] = math.NaN()
			continue
		}
		values[i] = v*p.ScaleFactor + p.AddOffset
	}
}

// IsMissing reports whether a packed value marks a missing measurement.
func (p Packing) IsMissing(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	for _, m := range p.Missing {
		if v == m {
			return true
		}
	}
	return false
}
