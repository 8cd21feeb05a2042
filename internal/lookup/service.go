// Package lookup answers point queries against grid cells loaded by earlier
// extractions.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// cellAggregations are the aggregations stored per grid cell, in the order a
// query without an explicit aggregation tries them. Time-series rows hold the
// mean of a whole box and never answer a point query.
var cellAggregations = []model.Aggregation{model.AggregationNone, model.AggregationSpatial}

// NoValueError reports that no stored cell of the tried aggregations contains
// the point at or before the queried month.
type NoValueError struct {
	Variable     model.Variable
	Aggregations []model.Aggregation
	Month        time.Time
	Lat          float32
	Lon          float32
}

func (e *NoValueError) Error() string {
	names := make([]string, len(e.Aggregations))
	for i, a := range e.Aggregations {
		names[i] = a.String()
	}
	return fmt.Sprintf(
		"no stored %s value (%s) covers lat %v lon %v at or before %s",
		e.Variable.String(),
		strings.Join(names, ", "),
		e.Lat,
		e.Lon,
		e.Month.Format("2006-01"),
	)
}

// Query asks for the values of Variables at one point and month.
type Query struct {
	Month     time.Time
	Lat       float32
	Lon       float32
	Variables []model.Variable
	// Aggregation restricts the lookup to one stored aggregation. Zero tries
	// monthly cell values first, then period means.
	Aggregation model.Aggregation
}

// Value is the stored value of one variable at the queried point.
type Value struct {
	Variable    model.Variable    `json:"variable"`
	Value       float32           `json:"value"`
	Unit        string            `json:"unit"`
	Aggregation model.Aggregation `json:"aggregation"`
	Month       time.Time         `json:"month"`
	// ExactMonth is false when the value comes from an earlier month or
	// from a period mean starting before the queried month.
	ExactMonth bool      `json:"exact_month"`
	CellLat    float32   `json:"cell_lat"`
	CellLon    float32   `json:"cell_lon"`
	CatalogID  uuid.UUID `json:"catalog_id"`
}

type Service struct {
	store CellStore
}

func NewService(store CellStore) *Service {
	return &Service{store: store}
}

// Lookup returns one value per queried variable, in order. The first failure
// cancels the remaining lookups.
func (s *Service) Lookup(ctx context.Context, q Query) ([]Value, error) {
	aggregations, err := candidates(q.Aggregation)
	if err != nil {
		return nil, err
	}
	q.Month = monthStart(q.Month)

	results := make([]Value, len(q.Variables))
	g, ctx := errgroup.WithContext(ctx)

	for i, variable := range q.Variables {
		g.Go(func() error {
			result, err := s.lookupVariable(ctx, q, variable, aggregations)
			if err != nil {
				return err
			}
			results[i] = *result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *Service) lookupVariable(
	ctx context.Context,
	q Query,
	variable model.Variable,
	aggregations []model.Aggregation,
) (*Value, error) {
	for _, aggregation := range aggregations {
		cell, err := s.store.NearestCell(ctx, CellQuery{
			Variable:    variable,
			Aggregation: aggregation,
			Month:       q.Month,
			Lat:         q.Lat,
			Lon:         q.Lon,
		})
		if errors.Is(err, ErrNoCell) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up %s %s: %w", aggregation.String(), variable.String(), err)
		}
		if !cell.Contains(q.Lat, q.Lon) {
			continue
		}

		return &Value{
			Variable:    variable,
			Value:       cell.Value,
			Unit:        cell.Unit,
			Aggregation: aggregation,
			Month:       cell.Month,
			ExactMonth:  monthStart(cell.Month).Equal(q.Month),
			CellLat:     cell.Lat,
			CellLon:     cell.Lon,
			CatalogID:   cell.CatalogID,
		}, nil
	}

	return nil, &NoValueError{
		Variable:     variable,
		Aggregations: aggregations,
		Month:        q.Month,
		Lat:          q.Lat,
		Lon:          q.Lon,
	}
}

func candidates(a model.Aggregation) ([]model.Aggregation, error) {
	if a == 0 {
		return cellAggregations, nil
	}
	for _, c := range cellAggregations {
		if c == a {
			return []model.Aggregation{a}, nil
		}
	}
	names := make([]string, len(cellAggregations))
	for i, c := range cellAggregations {
		names[i] = c.String()
	}
	return nil, &model.UnsupportedValueError{Kind: "lookup aggregation", Value: a.String(), Allowed: names}
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
