package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// ErrNoCell is returned by a CellStore when no stored cell of the queried
// aggregation contains the point.
var ErrNoCell = errors.New("no stored cell contains the point")

// CellQuery selects the stored grid cell containing (Lat, Lon) for the latest
// month not after Month.
type CellQuery struct {
	Variable    model.Variable
	Aggregation model.Aggregation
	Month       time.Time
	Lat         float32
	Lon         float32
}

// Cell is one stored grid cell value. Month is the first month of the period
// the value covers.
type Cell struct {
	Value     float32
	Unit      string
	Lat       float32
	Lon       float32
	Month     time.Time
	CatalogID uuid.UUID
}

// Contains reports whether (lat, lon) lies inside the cell, allowing for the
// float32 rounding of stored coordinates.
func (c Cell) Contains(lat, lon float32) bool {
	const half = model.GridSpacing/2 + 1e-5
	return abs(c.Lat-lat) <= half && abs(c.Lon-lon) <= half
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

type CellStore interface {
	NearestCell(ctx context.Context, q CellQuery) (*Cell, error)
}
