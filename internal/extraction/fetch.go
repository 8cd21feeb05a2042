package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// readAxes loads the three coordinate vectors of variable's dataset.
func readAxes(ctx context.Context, store ArrayStore, variable model.Variable) (Axes, error) {
	var axes Axes
	var err error

	if axes.Lat, err = store.ReadAxis(ctx, variable, AxisLat); err != nil {
		return Axes{}, fmt.Errorf("read %s axis: %w", AxisLat, err)
	}
	if axes.Lon, err = store.ReadAxis(ctx, variable, AxisLon); err != nil {
		return Axes{}, fmt.Errorf("read %s axis: %w", AxisLon, err)
	}
	if axes.Time, err = store.ReadAxis(ctx, variable, AxisTime); err != nil {
		return Axes{}, fmt.Errorf("read %s axis: %w", AxisTime, err)
	}

	return axes, nil
}

// fetchCube reads the selected block with a single hyperslab request.
func fetchCube(ctx context.Context, store ArrayStore, variable model.Variable, axes Axes, sel Selection) (*Cube, error) {
	slab := sel.Hyperslab()

	slog.DebugContext(ctx, "reading hyperslab", "variable", variable.String(), "constraint", slab.Constraint(), "values", slab.Len())

	values, err := store.ReadHyperslab(ctx, variable, slab)
	if err != nil {
		return nil, fmt.Errorf("read %s block: %w", variable, err)
	}

	times := make([]time.Time, sel.Time.Count())
	for k := range times {
		times[k] = model.DaysToTime(axes.Time[sel.Time.Start+k])
	}

	cube, err := NewCube(
		axes.Lat[sel.Lat.Start:sel.Lat.End+1],
		axes.Lon[sel.Lon.Start:sel.Lon.End+1],
		times,
		values,
	)
	if err != nil {
		return nil, fmt.Errorf("read %s block: %w", variable, err)
	}
	return cube, nil
}
