package problems

import (
	"math"
	"math/rand"

	"github.com/cwbudde/diffevo/internal/demc"
)

// ReservoirModel is a single linear reservoir with storage S and residence
// time k: dS/dt = f - S/k. Each step uses the exact solution for constant
// inflow over the interval, driven by the forcing at the interval start.
type ReservoirModel struct {
	state   []float64
	params  []float64
	forcing []float64
	times   []float64
}

// Evaluate returns the storage trajectory [1][len(times)], starting at the
// bound state.
func (m *ReservoirModel) Evaluate() ([][]float64, error) {
	out := [][]float64{make([]float64, len(m.times))}
	if len(m.times) == 0 {
		return out, nil
	}
	k := m.params[0]
	out[0][0] = m.state[0]
	for j := 1; j < len(m.times); j++ {
		out[0][j] = reservoirStep(out[0][j-1], m.forcing[j-1], m.times[j]-m.times[j-1], k)
	}
	return out, nil
}

func reservoirStep(s, f, dt, k float64) float64 {
	decay := math.Exp(-dt / k)
	return s*decay + f*k*(1-decay)
}

// ReservoirFactory creates reservoir models for chunked simulation.
type ReservoirFactory struct{}

// Create binds a model to one chunk.
func (ReservoirFactory) Create(state, params, forcing, times []float64) demc.Model {
	return &ReservoirModel{state: state, params: params, forcing: forcing, times: times}
}

// GaussianSSR scores a simulation by the Gaussian log-likelihood of the
// residuals up to a constant: -SSR / (2 sigma^2). Pairs where either side
// is NaN are skipped, which excludes the unsimulated first time point.
type GaussianSSR struct {
	Sigma float64
}

// Evaluate compares observations and simulation element-wise.
func (g GaussianSSR) Evaluate(obs, sim [][]float64) float64 {
	var ssr float64
	for s := range obs {
		for t := range obs[s] {
			r := obs[s][t] - sim[s][t]
			if math.IsNaN(r) {
				continue
			}
			ssr += r * r
		}
	}
	return -ssr / (2 * g.Sigma * g.Sigma)
}

// EvaluateParams is not meaningful without a simulation.
func (g GaussianSSR) EvaluateParams([]float64) float64 {
	return math.NaN()
}

const (
	reservoirTrueK     = 149.39756262040834
	reservoirInitial   = 30.0
	reservoirNoise     = 0.005
	reservoirNoiseSeed = 1
)

var reservoirAssimilate = []bool{
	false, false, false, true, true,
	true, true, true, true, true,
	true, true, true, true, true,
	true, true, true, true, true,
	false, false, false, false, false,
	true, true, true, true, true,
	true, true, true, true, true,
	true, true, true, true, true,
	true, true, true, true, true,
	true, true, true, true,
}

func reservoirTimes() []float64 {
	return linspace(125.5, 149.5, 49)
}

func reservoirForcing() []float64 {
	f := make([]float64, 49)
	copy(f, []float64{0.1, 0.2, 0.5, 0.6, 0.3})
	f[48] = math.NaN() // never used: forcing drives the interval that follows
	return f
}

// reservoirObservations simulates the reservoir at the reference residence
// time and adds uniform measurement noise from a fixed seed.
func reservoirObservations() [][]float64 {
	m := &ReservoirModel{
		state:   []float64{reservoirInitial},
		params:  []float64{reservoirTrueK},
		forcing: reservoirForcing(),
		times:   reservoirTimes(),
	}
	sim, _ := m.Evaluate()

	rng := rand.New(rand.NewSource(reservoirNoiseSeed))
	for t := range sim[0] {
		sim[0][t] += rng.Float64() * reservoirNoise
	}
	return sim
}

// reservoirDirect scores a residence time by simulating the whole horizon
// in one piece, without chunking.
func reservoirDirect() func([]float64) float64 {
	obs := reservoirObservations()
	times := reservoirTimes()
	forcing := reservoirForcing()
	like := GaussianSSR{Sigma: reservoirNoise}

	return func(p []float64) float64 {
		m := &ReservoirModel{state: []float64{reservoirInitial}, params: p, forcing: forcing, times: times}
		sim, _ := m.Evaluate()
		sim[0][0] = math.NaN()
		return like.Evaluate(obs, sim)
	}
}
