package demc

import (
	"fmt"

	"github.com/cwbudde/diffevo/internal/parspace"
	"github.com/cwbudde/diffevo/internal/timeline"
)

// MinPopulationSize is the smallest population for which three distinct
// donors other than the target slot can be drawn.
const MinPopulationSize = 4

// ErrInsufficientPopulation is returned when the population is too small to
// draw three distinct donors. Use errors.Is(err, ErrInsufficientPopulation).
var ErrInsufficientPopulation = &InsufficientPopulationError{}

// InsufficientPopulationError reports a population smaller than MinPopulationSize.
type InsufficientPopulationError struct {
	Size int
}

func (e *InsufficientPopulationError) Error() string {
	return fmt.Sprintf("insufficient population: size %d, need at least %d", e.Size, MinPopulationSize)
}

func (e *InsufficientPopulationError) Is(target error) bool {
	_, ok := target.(*InsufficientPopulationError)
	return ok
}

// Re-exported so callers of the engine only need this package.
var (
	ErrDimensionMismatch = parspace.ErrDimensionMismatch
	ErrInvalidTimeline   = timeline.ErrInvalidTimeline
)

// DimensionMismatchError is the parspace error type.
type DimensionMismatchError = parspace.DimensionMismatchError

// ConfigError represents an invalid engine configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Reason
}
