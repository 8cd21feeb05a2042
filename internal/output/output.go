// Package output encodes reduced extraction results as files.
package output

import (
	"fmt"
	"io"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// Extension returns the file extension, without dot, used for aggregation.
func Extension(aggregation model.Aggregation) (string, error) {
	switch aggregation {
	case model.AggregationTimeseries:
		return "csv", nil
	case model.AggregationSpatial:
		return "tif", nil
	default:
		return "", &extraction.UnsupportedAggregationError{Aggregation: aggregation}
	}
}

// ContentType returns the media type of files with the given extension.
func ContentType(ext string) string {
	switch ext {
	case "csv":
		return "text/csv"
	case "tif":
		return "image/tiff; application=geotiff"
	default:
		return "application/octet-stream"
	}
}

// Encode writes result in the format its aggregation selects: a CSV table for
// a time series, a GeoTIFF for a map. Unreduced cubes cannot be encoded.
func Encode(w io.Writer, result *extraction.Result) error {
	switch {
	case result.Series != nil:
		return WriteSeriesCSV(w, result.Series)
	case result.Map != nil:
		return WriteGeoTIFF(w, result.Map, result.Bounds.Extent())
	default:
		return fmt.Errorf("encode %s result: %w", result.Aggregation, &extraction.UnsupportedAggregationError{Aggregation: result.Aggregation})
	}
}
