// Package problems holds the bundled estimation problems: benchmark
// functions scored directly and a reservoir model scored against
// observations through chunked simulation.
package problems

import (
	"fmt"
	"sort"

	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/parspace"
	"github.com/cwbudde/diffevo/internal/timeline"
)

// Instance is a ready-to-run problem together with its concrete space.
type Instance struct {
	Problem demc.Problem
	Space   *parspace.Space
}

// Definition describes a named problem and its default run settings.
type Definition struct {
	Name           string
	Description    string
	Generations    int
	PopulationSize int
	Simulation     bool

	build func() (*Instance, error)
}

// Build constructs a fresh instance. Instances share no mutable state, so
// concurrent runs of the same problem do not interfere.
func (d Definition) Build() (*Instance, error) {
	inst, err := d.build()
	if err != nil {
		return nil, fmt.Errorf("failed to build problem %s: %w", d.Name, err)
	}
	return inst, nil
}

// UnknownProblemError is returned by Lookup for unregistered names.
type UnknownProblemError struct {
	Name string
}

func (e *UnknownProblemError) Error() string {
	return fmt.Sprintf("unknown problem %q (available: %v)", e.Name, Names())
}

var registry = map[string]Definition{}

func register(d Definition) {
	if d.Generations == 0 {
		d.Generations = 300
	}
	if d.PopulationSize == 0 {
		d.PopulationSize = 50
	}
	registry[d.Name] = d
}

// Lookup returns the definition registered under name.
func Lookup(name string) (Definition, error) {
	d, ok := registry[name]
	if !ok {
		return Definition{}, &UnknownProblemError{Name: name}
	}
	return d, nil
}

// Names returns all registered problem names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all definitions sorted by name.
func All() []Definition {
	out := make([]Definition, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name])
	}
	return out
}

func direct(lower, upper []float64, names []string, intervals []int, f func([]float64) float64) func() (*Instance, error) {
	return func() (*Instance, error) {
		space, err := parspace.New(lower, upper, names)
		if err != nil {
			return nil, err
		}
		if _, err := space.WithIntervals(intervals...); err != nil {
			return nil, err
		}
		return &Instance{
			Problem: demc.Problem{Space: space, Likelihood: directFactory(f)},
			Space:   space,
		}, nil
	}
}

func buildReservoirStateSpace() (*Instance, error) {
	space, err := parspace.New([]float64{110}, []float64{180}, []string{"resistance"})
	if err != nil {
		return nil, err
	}
	if _, err := space.WithIntervals(100); err != nil {
		return nil, err
	}

	tl, err := timeline.New(reservoirTimes(), reservoirForcing(), reservoirAssimilate)
	if err != nil {
		return nil, err
	}

	return &Instance{
		Problem: demc.Problem{
			Space: space,
			Likelihood: demc.LikelihoodFactoryFunc(func() demc.LikelihoodFunction {
				return GaussianSSR{Sigma: reservoirNoise}
			}),
			Models:       ReservoirFactory{},
			Observations: reservoirObservations(),
			InitialState: []float64{reservoirInitial},
			Timeline:     tl,
		},
		Space: space,
	}, nil
}

func init() {
	register(Definition{
		Name:        "doublenormal",
		Description: "Bimodal normal mixture in one dimension",
		build:       direct([]float64{-20}, []float64{18}, []string{"theta"}, []int{50}, doubleNormal),
	})
	register(Definition{
		Name:        "singlenormal",
		Description: "Single normal density in one dimension",
		build:       direct([]float64{-50}, []float64{40}, []string{"theta"}, []int{50}, singleNormal),
	})
	register(Definition{
		Name:        "rastrigin",
		Description: "Negated 2-D Rastrigin function",
		build:       direct([]float64{-5.12, -5.12}, []float64{5.12, 5.12}, []string{"p1", "p2"}, []int{200}, rastriginScore),
	})
	register(Definition{
		Name:        "rosenbrock",
		Description: "Negative log of the 2-D Rosenbrock function",
		build:       direct([]float64{-50, -40}, []float64{50, 80}, []string{"p1", "p2"}, []int{500}, rosenbrockScore),
	})
	register(Definition{
		Name:        "cubic",
		Description: "Cubic polynomial fitted to synthetic data",
		build: direct([]float64{-20, -40, -80, -120}, []float64{20, 40, 80, 120},
			[]string{"a", "b", "c", "d"}, []int{50, 50, 50, 50}, cubicScore),
	})
	register(Definition{
		Name:        "lineardynamic",
		Description: "Linear reservoir residence time, whole-horizon simulation",
		build: func() (*Instance, error) {
			return direct([]float64{110}, []float64{180}, []string{"resistance"}, []int{100}, reservoirDirect())()
		},
	})
	register(Definition{
		Name:        "lineardynamic-ss",
		Description: "Linear reservoir residence time, chunked state-space simulation",
		Simulation:  true,
		build:       buildReservoirStateSpace,
	})
}
