package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service runs the extraction pipeline: validate, resolve, fetch, reduce.
type Service struct {
	store   ArrayStore
	timeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds every extraction, remote reads included. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func NewService(store ArrayStore, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch is the in-memory accessor. The aggregation defaults to none.
func (s *Service) Fetch(ctx context.Context, req Request) (*Result, error) {
	params, err := Validate(ctx, FetchEntryPoint, req)
	if err != nil {
		return nil, err
	}
	return s.Extract(ctx, params)
}

// FetchVariables runs Fetch for each of variables with otherwise identical
// bounds. Results are returned in the order of variables; the first failure
// cancels the rest.
func (s *Service) FetchVariables(ctx context.Context, req Request, variables []string) ([]*Result, error) {
	results := make([]*Result, len(variables))
	g, ctx := errgroup.WithContext(ctx)

	for i, variable := range variables {
		g.Go(func() error {
			varReq := req
			varReq.Variable = variable
			result, err := s.Fetch(ctx, varReq)
			if err != nil {
				return fmt.Errorf("variable %q: %w", variable, err)
			}
			results[i] = result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Extract runs the pipeline for already validated params.
func (s *Service) Extract(ctx context.Context, params Params) (*Result, error) {
	if !params.Aggregation.IsValid() {
		return nil, &UnsupportedAggregationError{Aggregation: params.Aggregation}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	slog.InfoContext(ctx, "extraction started",
		"variable", params.Variable.String(),
		"aggregation", params.Aggregation.String(),
		"lat", params.Bounds.Lat.String(),
		"lon", params.Bounds.Lon.String(),
		"years", params.Bounds.Years.String(),
		"months", params.Bounds.Months.String(),
	)

	axes, err := readAxes(ctx, s.store, params.Variable)
	if err != nil {
		return nil, err
	}

	sel, err := Resolve(axes, params.Bounds)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "selection resolved", "lat", sel.Lat.String(), "lon", sel.Lon.String(), "time", sel.Time.String())

	cube, err := fetchCube(ctx, s.store, params.Variable, axes, sel)
	if err != nil {
		return nil, err
	}

	result, err := Reduce(cube, params.Aggregation)
	if err != nil {
		return nil, err
	}
	result.Variable = params.Variable
	result.Bounds = params.Bounds
	result.Selection = sel

	slog.InfoContext(ctx, "extraction complete",
		"variable", params.Variable.String(),
		"time_steps", sel.Time.Count(),
		"cells", sel.Lat.Count()*sel.Lon.Count(),
		"duration", time.Since(started),
	)
	return result, nil
}
