package output

import (
	"math"
	"strconv"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// Document is the JSON form of a result. Values keep the shape of the
// aggregation: a list for a series, lat rows of lon columns for a map and
// lon, lat, time nesting for a cube. Missing values are null.
type Document struct {
	Variable    model.Variable      `json:"variable"`
	Unit        string              `json:"unit"`
	Aggregation model.Aggregation   `json:"aggregation"`
	Bounds      model.GeoTimeBounds `json:"bounds"`
	Times       []string            `json:"times"`
	Lat         []float64           `json:"lat,omitempty"`
	Lon         []float64           `json:"lon,omitempty"`
	Values      any                 `json:"values"`
}

func NewDocument(result *extraction.Result) Document {
	doc := Document{
		Variable:    result.Variable,
		Unit:        result.Variable.Unit(),
		Aggregation: result.Aggregation,
		Bounds:      result.Bounds,
		Times:       []string{},
	}
	for _, ts := range result.Times() {
		doc.Times = append(doc.Times, ts.Format(DateLayout))
	}

	switch {
	case result.Series != nil:
		doc.Values = numbers(result.Series.Values)
	case result.Map != nil:
		doc.Lat, doc.Lon = result.Map.Lat, result.Map.Lon
		doc.Values = numberRows(result.Map.Values)
	case result.Cube != nil:
		doc.Lat, doc.Lon = result.Cube.Lat, result.Cube.Lon
		grid := result.Cube.Grid()
		values := make([][][]number, len(grid))
		for i := range grid {
			values[i] = numberRows(grid[i])
		}
		doc.Values = values
	}
	return doc
}

// number encodes NaN as null.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(n)) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(n), 'g', -1, 64), nil
}

func numbers(values []float64) []number {
	out := make([]number, len(values))
	for i, v := range values {
		out[i] = number(v)
	}
	return out
}

func numberRows(rows [][]float64) [][]number {
	out := make([][]number, len(rows))
	for i, row := range rows {
		out[i] = numbers(row)
	}
	return out
}
