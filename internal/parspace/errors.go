package parspace

import "fmt"

// ErrDimensionMismatch is returned when a vector or matrix does not have the
// shape the caller declared. Use errors.Is(err, ErrDimensionMismatch).
var ErrDimensionMismatch = &DimensionMismatchError{}

// DimensionMismatchError reports a length or shape disagreement.
type DimensionMismatchError struct {
	What     string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	if e.What == "" {
		return "dimension mismatch"
	}
	return fmt.Sprintf("dimension mismatch: %s (expected %d, got %d)", e.What, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool {
	_, ok := target.(*DimensionMismatchError)
	return ok
}

// ValidationError represents an invalid bound definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
