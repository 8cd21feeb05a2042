package extraction

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFloatList reads comma-separated bounds such as "50,51.5". An empty
// string yields nil, which Validate reports as a missing argument.
func ParseFloatList(name, raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseIntList is ParseFloatList for year and month bounds.
func ParseIntList(name, raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		out[i] = v
	}
	return out, nil
}
