package timeline

import "fmt"

// ErrInvalidTimeline is returned for malformed timelines.
// Use errors.Is(err, ErrInvalidTimeline) to check for this error.
var ErrInvalidTimeline = &InvalidTimelineError{}

// InvalidTimelineError describes why a timeline could not be chunked.
type InvalidTimelineError struct {
	Reason string
}

func (e *InvalidTimelineError) Error() string {
	if e.Reason != "" {
		return "invalid timeline: " + e.Reason
	}
	return "invalid timeline"
}

func (e *InvalidTimelineError) Is(target error) bool {
	_, ok := target.(*InvalidTimelineError)
	return ok
}

// Timeline partitions a time axis and its forcing series into chunks that
// end at assimilation points.
//
// A new chunk starts at index 0 and wherever the assimilation flag switches
// from false to true. Consecutive chunks share their boundary sample, so the
// last index of chunk k is the first index of chunk k+1 and simulated state
// can be carried across.
type Timeline struct {
	times      []float64
	forcing    []float64
	assimilate []bool
	starts     []int
	ends       []int
}

// New builds a chunked timeline from parallel slices.
func New(times, forcing []float64, assimilate []bool) (*Timeline, error) {
	n := len(times)
	if n == 0 {
		return nil, &InvalidTimelineError{Reason: "no time points"}
	}
	if len(forcing) != n {
		return nil, &InvalidTimelineError{Reason: fmt.Sprintf("forcing has %d points, times has %d", len(forcing), n)}
	}
	if len(assimilate) != n {
		return nil, &InvalidTimelineError{Reason: fmt.Sprintf("assimilate has %d flags, times has %d", len(assimilate), n)}
	}

	boundaries := []int{0}
	for i := 1; i < n; i++ {
		if assimilate[i] && !assimilate[i-1] {
			boundaries = append(boundaries, i)
		}
	}

	var starts, ends []int
	for k, b := range boundaries {
		end := n - 1
		if k+1 < len(boundaries) {
			end = boundaries[k+1]
		} else if b == n-1 && k > 0 {
			// Already closed as the end of the previous chunk.
			break
		}
		starts = append(starts, b)
		ends = append(ends, end)
	}

	tl := &Timeline{
		times:      append([]float64(nil), times...),
		forcing:    append([]float64(nil), forcing...),
		assimilate: append([]bool(nil), assimilate...),
		starts:     starts,
		ends:       ends,
	}

	for k := range starts {
		if tl.AssimilationPoints(k) == 0 {
			return nil, &InvalidTimelineError{
				Reason: fmt.Sprintf("chunk %d [%d..%d] has no assimilation points", k, starts[k], ends[k]),
			}
		}
	}

	return tl, nil
}

// NumChunks returns the number of chunks.
func (tl *Timeline) NumChunks() int {
	return len(tl.starts)
}

// NumTimes returns the length of the full time axis.
func (tl *Timeline) NumTimes() int {
	return len(tl.times)
}

// Times returns the time slice of chunk k.
func (tl *Timeline) Times(k int) []float64 {
	return append([]float64(nil), tl.times[tl.starts[k]:tl.ends[k]+1]...)
}

// Forcing returns the forcing slice of chunk k.
func (tl *Timeline) Forcing(k int) []float64 {
	return append([]float64(nil), tl.forcing[tl.starts[k]:tl.ends[k]+1]...)
}

// Indices maps local positions of chunk k to global timeline indices.
func (tl *Timeline) Indices(k int) []int {
	idx := make([]int, 0, tl.ends[k]-tl.starts[k]+1)
	for i := tl.starts[k]; i <= tl.ends[k]; i++ {
		idx = append(idx, i)
	}
	return idx
}

// AssimilationPoints counts flagged points in chunk k, boundaries included.
func (tl *Timeline) AssimilationPoints(k int) int {
	count := 0
	for i := tl.starts[k]; i <= tl.ends[k]; i++ {
		if tl.assimilate[i] {
			count++
		}
	}
	return count
}
