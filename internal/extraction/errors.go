package extraction

import (
	"errors"
	"fmt"

	"hermannm.dev/wrap"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// Sentinel causes collected by ValidationError. Match them with errors.Is.
var (
	ErrBoundShape         = errors.New("bound must have exactly 2 elements")
	ErrBoundOrder         = errors.New("bound must be ascending")
	ErrBoundValue         = errors.New("bound value out of range")
	ErrMissingArgument    = errors.New("missing required argument")
	ErrAggregationInvalid = errors.New("aggregation not allowed here")
)

// ValidationError reports every problem found in a request. It is returned
// before any remote access takes place.
type ValidationError struct {
	EntryPoint string
	Problems   []error
}

func (e *ValidationError) Error() string {
	return wrap.Errors(fmt.Sprintf("invalid %s request", e.EntryPoint), e.Problems...).Error()
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// EmptySelectionError is returned when no coordinate on an axis falls inside
// the requested bounds.
type EmptySelectionError struct {
	Axis  Axis
	Lower float64
	Upper float64
}

func (e *EmptySelectionError) Error() string {
	return fmt.Sprintf("empty selection: no %s coordinate within [%v, %v]", e.Axis, e.Lower, e.Upper)
}

// UnsupportedAggregationError is returned when a reduction is requested with a
// mode outside the known set.
type UnsupportedAggregationError struct {
	Aggregation model.Aggregation
}

func (e *UnsupportedAggregationError) Error() string {
	return fmt.Sprintf("unsupported aggregation mode %d (must be one of: %v)", uint8(e.Aggregation), model.AggregationNames())
}

// BlockSizeError is returned when a store hands back a block whose length does
// not match the requested hyperslab.
type BlockSizeError struct {
	Want int
	Got  int
}

func (e *BlockSizeError) Error() string {
	return fmt.Sprintf("store returned %d values, expected %d", e.Got, e.Want)
}
