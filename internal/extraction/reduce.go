package extraction

import (
	"time"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// Result is the outcome of one extraction. Exactly one of Cube, Series and Map
// is set, according to Aggregation.
type Result struct {
	Variable    model.Variable
	Aggregation model.Aggregation
	Bounds      model.GeoTimeBounds
	Selection   Selection

	Cube   *Cube
	Series *Series
	Map    *Map
}

// Times returns the time steps the result covers.
func (r *Result) Times() []time.Time {
	switch {
	case r.Series != nil:
		return r.Series.Time
	case r.Map != nil:
		return r.Map.Period
	case r.Cube != nil:
		return r.Cube.Time
	default:
		return nil
	}
}

// Values returns the payload in its natural shape: []float64 for a series,
// [][]float64 (lat rows, lon columns) for a map, [][][]float64 (lon, lat, time)
// for a cube.
func (r *Result) Values() any {
	switch {
	case r.Series != nil:
		return r.Series.Values
	case r.Map != nil:
		return r.Map.Values
	case r.Cube != nil:
		return r.Cube.Grid()
	default:
		return nil
	}
}

// Reduce collapses cube according to aggregation. Averages skip NaN; a slice
// holding only NaN reduces to NaN.
func Reduce(cube *Cube, aggregation model.Aggregation) (*Result, error) {
	switch aggregation {
	case model.AggregationNone:
		return &Result{Aggregation: aggregation, Cube: cube}, nil
	case model.AggregationTimeseries:
		return &Result{Aggregation: aggregation, Series: spatialMean(cube)}, nil
	case model.AggregationSpatial:
		return &Result{Aggregation: aggregation, Map: temporalMean(cube)}, nil
	default:
		return nil, &UnsupportedAggregationError{Aggregation: aggregation}
	}
}

func spatialMean(cube *Cube) *Series {
	nLon, nLat, nTime := cube.Shape()
	series := &Series{Time: cube.Time, Values: make([]float64, nTime)}
	for k := range nTime {
		series.Values[k] = nanMean(func(yield func(float64)) {
			for j := range nLat {
				for i := range nLon {
					yield(cube.At(i, j, k))
				}
			}
		})
	}
	return series
}

func temporalMean(cube *Cube) *Map {
	nLon, nLat, nTime := cube.Shape()
	m := &Map{Lat: cube.Lat, Lon: cube.Lon, Values: make([][]float64, nLat), Period: cube.Time}
	for j := range nLat {
		m.Values[j] = make([]float64, nLon)
		for i := range nLon {
			m.Values[j][i] = nanMean(func(yield func(float64)) {
				for k := range nTime {
					yield(cube.At(i, j, k))
				}
			})
		}
	}
	return m
}
