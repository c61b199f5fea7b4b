package demc

import (
	"fmt"
	"sync"
)

// Ledger is the append-only record of every sample produced during a run.
// Identifiers are assigned by the ledger and form the contiguous sequence
// 0, 1, 2, ... in append order. Stored samples are never modified,
// reordered or removed.
//
// The engine is the only writer. Readers may call accessors concurrently,
// e.g. the job server reporting progress while a run is in flight.
type Ledger struct {
	mu       sync.RWMutex
	samples  []Sample
	capacity int
}

// NewLedger creates an empty ledger sized for the expected number of samples.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
	}
}

// Record appends a sample with the next identifier. The parameter vector is
// copied so later changes by the caller cannot reach the ledger.
func (l *Ledger) Record(params []float64, score float64) Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Sample{
		ID:     len(l.samples),
		Params: append([]float64(nil), params...),
		Score:  score,
	}
	l.samples = append(l.samples, s)
	return s
}

// Len returns the number of recorded samples.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Capacity returns the expected final size given at construction.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// At returns a copy of the i-th sample.
func (l *Ledger) At(i int) Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copySample(l.samples[i])
}

// Samples returns a copy of all recorded samples in identifier order.
func (l *Ledger) Samples() []Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Sample, len(l.samples))
	for i, s := range l.samples {
		out[i] = copySample(s)
	}
	return out
}

// Generation returns the samples recorded for generation g (1-based) of a run
// with the given population size.
func (l *Ledger) Generation(g, populationSize int) ([]Sample, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if g < 1 || populationSize <= 0 {
		return nil, fmt.Errorf("invalid generation %d for population size %d", g, populationSize)
	}
	start := (g - 1) * populationSize
	end := start + populationSize
	if end > len(l.samples) {
		return nil, fmt.Errorf("generation %d not recorded (ledger has %d samples)", g, len(l.samples))
	}

	out := make([]Sample, 0, populationSize)
	for _, s := range l.samples[start:end] {
		out = append(out, copySample(s))
	}
	return out, nil
}

// Best returns the highest-scoring sample. ok is false when the ledger is
// empty or only holds NaN scores.
func (l *Ledger) Best() (best Sample, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := Population(l.samples).Best()
	if idx < 0 {
		return Sample{}, false
	}
	return copySample(l.samples[idx]), true
}

func copySample(s Sample) Sample {
	return Sample{ID: s.ID, Params: append([]float64(nil), s.Params...), Score: s.Score}
}
