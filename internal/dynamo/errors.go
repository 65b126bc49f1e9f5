package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for population access.
var (
	// ErrInvalidID indicates a caller-supplied id outside the served range.
	ErrInvalidID = errors.New("dynamo: invalid id")

	// ErrIndexOutOfRange indicates an index that slipped past the boundary check.
	ErrIndexOutOfRange = errors.New("dynamo: body index out of range")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")
)

// IndexError records an out-of-range body access.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: index %d, population size %d", ErrIndexOutOfRange, e.Index, e.Len)
}

func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}
