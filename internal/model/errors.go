package model

import (
	"fmt"
	"strings"
)

// UnsupportedValueError is returned when a string does not name a member of
// one of the closed enumerations.
type UnsupportedValueError struct {
	Kind    string
	Value   string
	Allowed []string
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("unsupported %s %q (must be one of: %s)", e.Kind, e.Value, strings.Join(e.Allowed, ", "))
}
