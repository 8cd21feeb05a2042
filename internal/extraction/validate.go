package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// EntryPoint describes the argument requirements of one public accessor.
type EntryPoint struct {
	Name string
	// RequiredArgs is the number of leading arguments that must be supplied.
	RequiredArgs int
	// DefaultAggregation is used when the caller leaves Aggregation empty.
	DefaultAggregation model.Aggregation
	// AllowNone reports whether the unreduced cube is an acceptable result.
	AllowNone bool
	// NeedsDestination requires Folder and Filename.
	NeedsDestination bool
}

var (
	// FetchEntryPoint returns results in memory and keeps the cube by default.
	FetchEntryPoint = EntryPoint{
		Name:               "fetch",
		RequiredArgs:       5,
		DefaultAggregation: model.AggregationNone,
		AllowNone:          true,
	}
	// WriteEntryPoint writes results to disk and produces a time series by default.
	WriteEntryPoint = EntryPoint{
		Name:               "write",
		RequiredArgs:       7,
		DefaultAggregation: model.AggregationTimeseries,
		AllowNone:          false,
		NeedsDestination:   true,
	}
)

// Request is the raw, unvalidated input of an extraction. Bounds are kept as
// slices so that malformed shapes can be reported.
type Request struct {
	LatBounds   []float64 `json:"lat"`
	LonBounds   []float64 `json:"lon"`
	YearBounds  []int     `json:"years"`
	MonthBounds []int     `json:"months"`
	Variable    string    `json:"variable"`
	// Aggregation is optional; the entry point's default applies when empty.
	Aggregation string `json:"aggregation,omitempty"`

	// Folder and Filename are only used by WriteEntryPoint.
	Folder   string `json:"folder,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Params is a validated extraction request.
type Params struct {
	Bounds      model.GeoTimeBounds
	Variable    model.Variable
	Aggregation model.Aggregation
}

// Validate checks req against the requirements of entry. All problems are
// reported at once in a *ValidationError.
func Validate(ctx context.Context, entry EntryPoint, req Request) (Params, error) {
	var params Params
	var problems []error

	missing := func(name string) {
		problems = append(problems, fmt.Errorf("%w: %s (%s takes at least %d arguments)", ErrMissingArgument, name, entry.Name, entry.RequiredArgs))
	}

	if entry.NeedsDestination {
		if req.Folder == "" {
			missing("folder")
		}
		if req.Filename == "" {
			missing("filename")
		}
	}

	if req.LatBounds == nil {
		missing("latitude bounds")
	} else {
		lat, err := floatRange("latitude", req.LatBounds)
		if err != nil {
			problems = append(problems, err)
		}
		params.Bounds.Lat = lat
	}

	if req.LonBounds == nil {
		missing("longitude bounds")
	} else {
		lon, err := floatRange("longitude", req.LonBounds)
		if err != nil {
			problems = append(problems, err)
		}
		params.Bounds.Lon = lon
	}

	if req.YearBounds == nil {
		missing("year bounds")
	} else {
		years, err := intRange("year", req.YearBounds)
		if err != nil {
			problems = append(problems, err)
		}
		params.Bounds.Years = years
	}

	if req.MonthBounds == nil {
		missing("month bounds")
	} else {
		months, err := intRange("month", req.MonthBounds)
		if err != nil {
			problems = append(problems, err)
		} else if months.Lower < 1 || months.Upper > 12 {
			problems = append(problems, fmt.Errorf("%w: months %v must lie within 1-12", ErrBoundValue, req.MonthBounds))
		}
		params.Bounds.Months = months
	}

	if req.Variable == "" {
		missing("variable")
	} else {
		variable, err := model.ParseVariable(req.Variable)
		if err != nil {
			problems = append(problems, err)
		}
		params.Variable = variable
	}

	if req.Aggregation == "" {
		params.Aggregation = entry.DefaultAggregation
		slog.InfoContext(ctx, "no aggregation given, using default", "entry_point", entry.Name, "aggregation", entry.DefaultAggregation.String())
	} else {
		aggregation, err := model.ParseAggregation(req.Aggregation)
		if err != nil {
			problems = append(problems, err)
		} else if aggregation == model.AggregationNone && !entry.AllowNone {
			problems = append(problems, fmt.Errorf("%w: %s does not accept aggregation %q", ErrAggregationInvalid, entry.Name, aggregation))
		}
		params.Aggregation = aggregation
	}

	if len(problems) > 0 {
		return Params{}, &ValidationError{EntryPoint: entry.Name, Problems: problems}
	}
	return params, nil
}

func floatRange(name string, bounds []float64) (model.Range[float64], error) {
	if len(bounds) != 2 {
		return model.Range[float64]{}, fmt.Errorf("%w: %s bounds have %d elements", ErrBoundShape, name, len(bounds))
	}
	lower, upper := bounds[0], bounds[1]
	if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
		return model.Range[float64]{}, fmt.Errorf("%w: %s bounds %v must be finite", ErrBoundValue, name, bounds)
	}
	if lower > upper {
		return model.Range[float64]{}, fmt.Errorf("%w: %s bounds %v are descending", ErrBoundOrder, name, bounds)
	}
	return model.Range[float64]{Lower: lower, Upper: upper}, nil
}

func intRange(name string, bounds []int) (model.Range[int], error) {
	if len(bounds) != 2 {
		return model.Range[int]{}, fmt.Errorf("%w: %s bounds have %d elements", ErrBoundShape, name, len(bounds))
	}
	if bounds[0] > bounds[1] {
		return model.Range[int]{}, fmt.Errorf("%w: %s bounds %v are descending", ErrBoundOrder, name, bounds)
	}
	return model.Range[int]{Lower: bounds[0], Upper: bounds[1]}, nil
}
