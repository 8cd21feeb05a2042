package model

import (
	"strings"

	"hermannm.dev/enumnames"
)

// Aggregation selects how an extracted cube is reduced.
type Aggregation uint8

const (
	// AggregationNone keeps the full lat × lon × time cube.
	AggregationNone Aggregation = iota + 1
	// AggregationTimeseries averages the two spatial axes, leaving one value per month.
	AggregationTimeseries
	// AggregationSpatial averages the time axis, leaving one value per grid cell.
	AggregationSpatial
)

var aggregationMap = enumnames.NewMap(map[Aggregation]string{
	AggregationNone:       "none",
	AggregationTimeseries: "timeseries",
	AggregationSpatial:    "spatial",
})

var allAggregations = []Aggregation{AggregationNone, AggregationTimeseries, AggregationSpatial}

// ParseAggregation matches s against the aggregation modes, ignoring case.
func ParseAggregation(s string) (Aggregation, error) {
	trimmed := strings.TrimSpace(s)
	for _, a := range allAggregations {
		if strings.EqualFold(a.String(), trimmed) {
			return a, nil
		}
	}
	return 0, &UnsupportedValueError{Kind: "aggregation", Value: s, Allowed: AggregationNames()}
}

func AggregationNames() []string {
	names := make([]string, len(allAggregations))
	for i, a := range allAggregations {
		names[i] = a.String()
	}
	return names
}

func (a Aggregation) IsValid() bool {
	return aggregationMap.GetNameOrFallback(a, "") != ""
}

func (a Aggregation) String() string {
	return aggregationMap.GetNameOrFallback(a, "INVALID_AGGREGATION")
}

func (a Aggregation) MarshalJSON() ([]byte, error) {
	return aggregationMap.MarshalToNameJSON(a)
}

func (a *Aggregation) UnmarshalJSON(bytes []byte) error {
	return aggregationMap.UnmarshalFromNameJSON(bytes, a)
}
