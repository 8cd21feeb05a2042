package clickhouse

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
)

// Row is one record of terraclimate_values.
type Row struct {
	CatalogID   uuid.UUID
	Variable    string
	Aggregation string
	Timestamp   time.Time
	Lat         float32
	Lon         float32
	Value       float32
	Unit        string
}

// BuildRows flattens result into table rows. A time series is placed at the
// centre of the requested box and a map at the first averaged time step.
// Missing values are skipped.
func BuildRows(result *extraction.Result, catalogID uuid.UUID) []Row {
	base := Row{
		CatalogID:   catalogID,
		Variable:    result.Variable.String(),
		Aggregation: result.Aggregation.String(),
		Unit:        result.Variable.Unit(),
	}
	var rows []Row
	add := func(ts time.Time, lat, lon, value float64) {
		if math.IsNaN(value) {
			return
		}
		row := base
		row.Timestamp = ts
		row.Lat = float32(lat)
		row.Lon = float32(lon)
		row.Value = float32(value)
		rows = append(rows, row)
	}

	switch {
	case result.Series != nil:
		lat, lon := result.Bounds.Extent().Center()
		for k, ts := range result.Series.Time {
			add(ts, lat, lon, result.Series.Values[k])
		}
	case result.Map != nil:
		if len(result.Map.Period) == 0 {
			return nil
		}
		ts := result.Map.Period[0]
		for j, lat := range result.Map.Lat {
			for i, lon := range result.Map.Lon {
				add(ts, lat, lon, result.Map.At(i, j))
			}
		}
	case result.Cube != nil:
		cube := result.Cube
		for k, ts := range cube.Time {
			for j, lat := range cube.Lat {
				for i, lon := range cube.Lon {
					add(ts, lat, lon, cube.At(i, j, k))
				}
			}
		}
	}

	return rows
}
