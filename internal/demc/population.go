package demc

import "math"

// Sample is one evaluated parameter vector. Samples are values; the vector
// is never modified after the sample is created.
type Sample struct {
	ID     int       `json:"id"`
	Params []float64 `json:"params"`
	Score  float64   `json:"score"`
}

// Population is an ordered set of slots. A generation never edits a
// population in place; it builds a new one.
type Population []Sample

// newPopulation wraps parameter vectors into unscored slots.
func newPopulation(vectors [][]float64) Population {
	pop := make(Population, len(vectors))
	for i, v := range vectors {
		pop[i] = Sample{ID: -1, Params: v}
	}
	return pop
}

// Clone returns a deep copy so callers cannot alias engine storage.
func (p Population) Clone() Population {
	out := make(Population, len(p))
	for i, s := range p {
		out[i] = Sample{ID: s.ID, Params: append([]float64(nil), s.Params...), Score: s.Score}
	}
	return out
}

// Best returns the index of the highest-scoring slot, or -1 if empty.
// NaN scores never win.
func (p Population) Best() int {
	best := -1
	for i, s := range p {
		if math.IsNaN(s.Score) {
			continue
		}
		if best < 0 || s.Score > p[best].Score {
			best = i
		}
	}
	return best
}
