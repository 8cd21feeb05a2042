package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
)

// DateLayout formats series timestamps. TerraClimate steps are monthly, so
// the time of day is always midnight.
const DateLayout = "2006-01-02"

// WriteSeriesCSV writes series as a two-column "time,value" table. Missing
// values are written as NaN.
func WriteSeriesCSV(w io.Writer, series *extraction.Series) error {
	if len(series.Time) != len(series.Values) {
		return fmt.Errorf("series has %d timestamps and %d values", len(series.Time), len(series.Values))
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "value"}); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for i, ts := range series.Time {
		row := []string{ts.Format(DateLayout), strconv.FormatFloat(series.Values[i], 'g', -1, 64)}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}
