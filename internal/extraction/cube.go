package extraction

import (
	"fmt"
	"math"
	"time"
)

// Cube is a dense lon × lat × time block. Missing values are NaN.
// Coordinates keep the order in which the store holds them.
type Cube struct {
	Lat  []float64
	Lon  []float64
	Time []time.Time

	// values are laid out time-major as delivered by the store: [time][lat][lon].
	values []float64
}

// NewCube wraps values read in time, lat, lon order.
func NewCube(lat, lon []float64, times []time.Time, values []float64) (*Cube, error) {
	want := len(lat) * len(lon) * len(times)
	if len(values) != want {
		return nil, &BlockSizeError{Want: want, Got: len(values)}
	}
	return &Cube{Lat: lat, Lon: lon, Time: times, values: values}, nil
}

// Shape returns the cube's extent along lon, lat and time.
func (c *Cube) Shape() (nLon, nLat, nTime int) {
	return len(c.Lon), len(c.Lat), len(c.Time)
}

// At returns the value at lon index i, lat index j and time index k.
func (c *Cube) At(i, j, k int) float64 {
	return c.values[(k*len(c.Lat)+j)*len(c.Lon)+i]
}

// Grid returns the values nested as [lon][lat][time].
func (c *Cube) Grid() [][][]float64 {
	nLon, nLat, nTime := c.Shape()
	grid := make([][][]float64, nLon)
	for i := range grid {
		grid[i] = make([][]float64, nLat)
		for j := range grid[i] {
			grid[i][j] = make([]float64, nTime)
			for k := range grid[i][j] {
				grid[i][j][k] = c.At(i, j, k)
			}
		}
	}
	return grid
}

// Series is one value per time step.
type Series struct {
	Time   []time.Time
	Values []float64
}

// Map is one value per grid cell. Rows follow Lat and columns follow Lon.
type Map struct {
	Lat    []float64
	Lon    []float64
	Values [][]float64
	// Period lists the time steps that were averaged.
	Period []time.Time
}

// At returns the value at lon index i and lat index j.
func (m *Map) At(i, j int) float64 {
	return m.Values[j][i]
}

// Dims returns the number of rows (lat) and columns (lon).
func (m *Map) Dims() (rows, cols int) {
	return len(m.Lat), len(m.Lon)
}

// NorthUp returns the map with rows ordered from north to south, as rasters
// expect. The receiver is returned unchanged if it is already north-up.
func (m *Map) NorthUp() *Map {
	if len(m.Lat) < 2 || m.Lat[0] >= m.Lat[len(m.Lat)-1] {
		return m
	}
	flipped := &Map{
		Lat:    make([]float64, len(m.Lat)),
		Lon:    m.Lon,
		Values: make([][]float64, len(m.Values)),
		Period: m.Period,
	}
	for j := range m.Lat {
		src := len(m.Lat) - 1 - j
		flipped.Lat[j] = m.Lat[src]
		flipped.Values[j] = m.Values[src]
	}
	return flipped
}

func (m *Map) String() string {
	rows, cols := m.Dims()
	return fmt.Sprintf("map(%dx%d)", rows, cols)
}

// nanMean averages the non-NaN values yielded by each, returning NaN when
// there are none.
func nanMean(each func(yield func(float64))) float64 {
	var sum float64
	var n int
	each(func(v float64) {
		if math.IsNaN(v) {
			return
		}
		sum += v
		n++
	})
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
