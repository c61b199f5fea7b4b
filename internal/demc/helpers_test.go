package demc

import (
	"math"
	"sync"
	"testing"

	"github.com/cwbudde/diffevo/internal/parspace"
	"github.com/cwbudde/diffevo/internal/timeline"
)

// paramsLikelihood scores parameter vectors with a plain function.
type paramsLikelihood func([]float64) float64

func (f paramsLikelihood) Evaluate(obs, sim [][]float64) float64 { return math.NaN() }
func (f paramsLikelihood) EvaluateParams(p []float64) float64    { return f(p) }

func directFactory(f func([]float64) float64) LikelihoodFactory {
	return LikelihoodFactoryFunc(func() LikelihoodFunction { return paramsLikelihood(f) })
}

func negSquare(v []float64) float64 {
	return -v[0] * v[0]
}

func sphere(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return -sum
}

// ssrLikelihood scores a simulation by negative sum of squared residuals,
// skipping NaN pairs.
type ssrLikelihood struct{}

func (ssrLikelihood) Evaluate(obs, sim [][]float64) float64 {
	var sum float64
	for s := range obs {
		for t := range obs[s] {
			d := obs[s][t] - sim[s][t]
			if math.IsNaN(d) {
				continue
			}
			sum += d * d
		}
	}
	return -sum
}

func (ssrLikelihood) EvaluateParams([]float64) float64 { return math.NaN() }

// reservoirModel integrates dx/dt = -x/k + f with explicit Euler steps.
type reservoirModel struct {
	state, params, forcing, times []float64
	record                        func([][]float64)
}

func (m *reservoirModel) Evaluate() ([][]float64, error) {
	out := [][]float64{make([]float64, len(m.times))}
	out[0][0] = m.state[0]
	for j := 1; j < len(m.times); j++ {
		dt := m.times[j] - m.times[j-1]
		prev := out[0][j-1]
		out[0][j] = prev + dt*(-prev/m.params[0]+m.forcing[j-1])
	}
	if m.record != nil {
		m.record(out)
	}
	return out, nil
}

type recordingFactory struct {
	mu      sync.Mutex
	outputs [][][]float64
}

func (f *recordingFactory) Create(state, params, forcing, times []float64) Model {
	return &reservoirModel{state: state, params: params, forcing: forcing, times: times, record: func(out [][]float64) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.outputs = append(f.outputs, out)
	}}
}

func mustSpace(t *testing.T, lower, upper []float64) *parspace.Space {
	t.Helper()
	names := make([]string, len(lower))
	for i := range names {
		names[i] = "p"
	}
	s, err := parspace.New(lower, upper, names)
	if err != nil {
		t.Fatalf("Failed to create space: %v", err)
	}
	return s
}

// simulationProblem builds a small reservoir problem with three chunks.
func simulationProblem(t *testing.T, factory ModelFactory) Problem {
	t.Helper()

	assim := []bool{false, true, true, false, false, true, true, true}
	n := len(assim)
	times := make([]float64, n)
	forcing := make([]float64, n)
	for i := range times {
		times[i] = float64(i) * 0.5
		if i < 2 {
			forcing[i] = 1
		}
	}
	tl, err := timeline.New(times, forcing, assim)
	if err != nil {
		t.Fatalf("Failed to create timeline: %v", err)
	}

	obs := [][]float64{make([]float64, n)}
	x := 30.0
	obs[0][0] = x
	for i := 1; i < n; i++ {
		x = x + 0.5*(-x/5+forcing[i-1])
		obs[0][i] = x
	}

	return Problem{
		Space:        mustSpace(t, []float64{1}, []float64{10}),
		Likelihood:   LikelihoodFactoryFunc(func() LikelihoodFunction { return ssrLikelihood{} }),
		Models:       factory,
		Observations: obs,
		InitialState: []float64{30},
		Timeline:     tl,
	}
}

func sameVector(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
