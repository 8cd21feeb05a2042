package storage

import (
	"fmt"
	"time"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// Prefix is the top-level folder of every object written by this service.
const Prefix = "terraclimate"

type ObjectKey struct {
	Variable    model.Variable
	Aggregation model.Aggregation
	Start       time.Time // first month of the window
	End         time.Time // last month of the window
	RunID       model.RunID
	Extension   string
}

// Key renders the object path, e.g.
// "terraclimate/ppt/timeseries/2000-01_2000-12/<run-id>.csv".
func (k ObjectKey) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s_%s/%s.%s",
		Prefix,
		k.Variable,
		k.Aggregation,
		k.Start.Format("2006-01"),
		k.End.Format("2006-01"),
		k.RunID,
		k.Extension,
	)
}
