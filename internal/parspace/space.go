package parspace

import (
	"fmt"
	"math"
	"math/rand"
)

const defaultIntervals = 50

// Space defines the bounded search space: one [lower, upper] range and a
// name per dimension.
type Space struct {
	lower     []float64
	upper     []float64
	names     []string
	intervals []int
}

// New creates a parameter space from parallel bound and name slices.
func New(lower, upper []float64, names []string) (*Space, error) {
	if len(upper) != len(lower) {
		return nil, &DimensionMismatchError{What: "upper bounds", Expected: len(lower), Actual: len(upper)}
	}
	if len(names) != len(lower) {
		return nil, &DimensionMismatchError{What: "parameter names", Expected: len(lower), Actual: len(names)}
	}
	if len(lower) == 0 {
		return nil, &ValidationError{Field: "Lower", Reason: "cannot be empty"}
	}
	for d := range lower {
		if math.IsNaN(lower[d]) || math.IsNaN(upper[d]) {
			return nil, &ValidationError{Field: fmt.Sprintf("bounds[%d]", d), Reason: "cannot be NaN"}
		}
		if lower[d] > upper[d] {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("bounds[%d]", d),
				Reason: fmt.Sprintf("lower %g exceeds upper %g", lower[d], upper[d]),
			}
		}
	}

	intervals := make([]int, len(lower))
	for d := range intervals {
		intervals[d] = defaultIntervals
	}

	return &Space{
		lower:     append([]float64(nil), lower...),
		upper:     append([]float64(nil), upper...),
		names:     append([]string(nil), names...),
		intervals: intervals,
	}, nil
}

// MustNew is like New but panics on error. Intended for fixed problem tables.
func MustNew(lower, upper []float64, names []string) *Space {
	s, err := New(lower, upper, names)
	if err != nil {
		panic(err)
	}
	return s
}

// WithIntervals sets the histogram bin count. A single value applies to all
// dimensions, otherwise one value per dimension is required.
func (s *Space) WithIntervals(n ...int) (*Space, error) {
	switch len(n) {
	case 1:
		for d := range s.intervals {
			s.intervals[d] = n[0]
		}
	case len(s.intervals):
		copy(s.intervals, n)
	default:
		return nil, &DimensionMismatchError{What: "intervals", Expected: len(s.intervals), Actual: len(n)}
	}
	for d, v := range s.intervals {
		if v <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("intervals[%d]", d), Reason: "must be positive"}
		}
	}
	return s, nil
}

// NumberOfDimensions returns the dimensionality of the space.
func (s *Space) NumberOfDimensions() int {
	return len(s.lower)
}

// Names returns a copy of the parameter names.
func (s *Space) Names() []string {
	return append([]string(nil), s.names...)
}

// Lower returns a copy of the lower bounds.
func (s *Space) Lower() []float64 {
	return append([]float64(nil), s.lower...)
}

// Upper returns a copy of the upper bounds.
func (s *Space) Upper() []float64 {
	return append([]float64(nil), s.upper...)
}

// Range returns upper - lower for dimension d.
func (s *Space) Range(d int) float64 {
	return s.upper[d] - s.lower[d]
}

// Intervals returns the histogram bin count for dimension d.
func (s *Space) Intervals(d int) int {
	return s.intervals[d]
}

// UniformSample draws one vector uniformly from the space, consuming exactly
// one rng.Float64 per dimension in dimension order.
func (s *Space) UniformSample(rng *rand.Rand) []float64 {
	v := make([]float64, len(s.lower))
	for d := range v {
		v[d] = s.lower[d] + rng.Float64()*s.Range(d)
	}
	return v
}

// Contains reports whether every component of v lies within its bounds.
func (s *Space) Contains(v []float64) bool {
	if len(v) != len(s.lower) {
		return false
	}
	for d, x := range v {
		if !(x >= s.lower[d] && x <= s.upper[d]) {
			return false
		}
	}
	return true
}

// Reflect mirrors out-of-range components of v back into bounds in place.
// Components are mirrored across the violated bound until they fall inside;
// unlike clamping this keeps proposals spread near the edges.
func (s *Space) Reflect(v []float64) error {
	if len(v) != len(s.lower) {
		return &DimensionMismatchError{What: "parameter vector", Expected: len(s.lower), Actual: len(v)}
	}
	for d := range v {
		v[d] = reflect(v[d], s.lower[d], s.upper[d])
	}
	return nil
}

// ReflectAll applies Reflect to every vector.
func (s *Space) ReflectAll(vectors [][]float64) error {
	for i, v := range vectors {
		if err := s.Reflect(v); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}
	return nil
}

func reflect(x, lo, hi float64) float64 {
	if lo == hi {
		return lo
	}
	if math.IsInf(x, 0) {
		// Mirroring an infinite excursion never terminates.
		if x > 0 {
			return hi
		}
		return lo
	}
	for x < lo || x > hi {
		if x < lo {
			x = lo + (lo - x)
		}
		if x > hi {
			x = hi - (x - hi)
		}
	}
	return x
}
