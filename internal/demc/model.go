package demc

import "math/rand"

// Model simulates one chunk of the timeline.
type Model interface {
	// Evaluate returns the simulated trajectory as [state][local time index].
	// Column 0 corresponds to the chunk's first time point.
	Evaluate() ([][]float64, error)
}

// ModelFactory builds a model bound to an initial state, a parameter vector
// and the forcing and time slices of one chunk.
type ModelFactory interface {
	Create(state, params, forcing, times []float64) Model
}

// LikelihoodFunction scores a candidate. Higher is better.
type LikelihoodFunction interface {
	// Evaluate compares observations with a simulation of the same shape.
	Evaluate(obs, sim [][]float64) float64
	// EvaluateParams scores a parameter vector directly.
	EvaluateParams(params []float64) float64
}

// LikelihoodFactory creates likelihood function instances.
type LikelihoodFactory interface {
	Create() LikelihoodFunction
}

// Space is the parameter space capability consumed by the engine.
type Space interface {
	NumberOfDimensions() int
	UniformSample(rng *rand.Rand) []float64
	ReflectAll(vectors [][]float64) error
}

// ModelFactoryFunc adapts a function to ModelFactory.
type ModelFactoryFunc func(state, params, forcing, times []float64) Model

func (f ModelFactoryFunc) Create(state, params, forcing, times []float64) Model {
	return f(state, params, forcing, times)
}

// LikelihoodFactoryFunc adapts a function to LikelihoodFactory.
type LikelihoodFactoryFunc func() LikelihoodFunction

func (f LikelihoodFactoryFunc) Create() LikelihoodFunction {
	return f()
}
