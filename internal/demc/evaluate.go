package demc

import (
	"fmt"
	"math"

	"github.com/sourcegraph/conc/pool"

	"github.com/cwbudde/diffevo/internal/timeline"
)

// ChunkObserver is notified after each chunk simulation with the state the
// chunk started from and the state carried into the next chunk. With more
// than one worker it is called concurrently from several goroutines.
type ChunkObserver func(member, chunk int, stateIn, stateOut []float64)

// Evaluator computes the objective score of every population member.
//
// With a ModelFactory it runs in simulation mode: each member is simulated
// chunk by chunk over the timeline starting from the initial state and the
// resulting trajectory is scored against the observations. Without one it
// runs in direct mode and scores the parameter vector itself.
type Evaluator struct {
	observations [][]float64
	initialState []float64
	timeline     *timeline.Timeline
	models       ModelFactory
	likelihood   LikelihoodFactory
	workers      int
	observer     ChunkObserver
}

// NewDirectEvaluator creates an evaluator that scores parameter vectors directly.
func NewDirectEvaluator(likelihood LikelihoodFactory) *Evaluator {
	return &Evaluator{likelihood: likelihood, workers: 1}
}

// NewSimulationEvaluator creates an evaluator that simulates each member over
// the timeline. Observations must be [len(initialState)][tl.NumTimes()].
func NewSimulationEvaluator(obs [][]float64, initialState []float64, tl *timeline.Timeline,
	models ModelFactory, likelihood LikelihoodFactory) (*Evaluator, error) {
	if tl == nil {
		return nil, &timeline.InvalidTimelineError{Reason: "simulation mode requires a timeline"}
	}
	if len(initialState) == 0 {
		return nil, &DimensionMismatchError{What: "initial state", Expected: 1, Actual: 0}
	}
	if len(obs) != len(initialState) {
		return nil, &DimensionMismatchError{What: "observation rows", Expected: len(initialState), Actual: len(obs)}
	}
	for i, row := range obs {
		if len(row) != tl.NumTimes() {
			return nil, &DimensionMismatchError{
				What:     fmt.Sprintf("observation row %d", i),
				Expected: tl.NumTimes(),
				Actual:   len(row),
			}
		}
	}

	copied := make([][]float64, len(obs))
	for i, row := range obs {
		copied[i] = append([]float64(nil), row...)
	}

	return &Evaluator{
		observations: copied,
		initialState: append([]float64(nil), initialState...),
		timeline:     tl,
		models:       models,
		likelihood:   likelihood,
		workers:      1,
	}, nil
}

// SetWorkers sets how many members are evaluated concurrently. Evaluation
// consumes no randomness, so results do not depend on this value.
func (e *Evaluator) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	e.workers = n
}

// SetObserver installs a chunk observer; nil removes it.
func (e *Evaluator) SetObserver(obs ChunkObserver) {
	e.observer = obs
}

// Simulating reports whether the evaluator runs in simulation mode.
func (e *Evaluator) Simulating() bool {
	return e.models != nil
}

// Evaluate returns a copy of pop with every member's score set.
func (e *Evaluator) Evaluate(pop Population) (Population, error) {
	out := make(Population, len(pop))
	copy(out, pop)

	if e.workers <= 1 || len(pop) <= 1 {
		for i := range out {
			score, err := e.score(i, out[i].Params)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			out[i].Score = score
		}
		return out, nil
	}

	p := pool.New().WithErrors().WithMaxGoroutines(e.workers)
	for i := range out {
		i := i
		p.Go(func() error {
			score, err := e.score(i, out[i].Params)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			out[i].Score = score
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Evaluator) score(member int, params []float64) (float64, error) {
	lf := e.likelihood.Create()
	if e.models == nil {
		return lf.EvaluateParams(params), nil
	}

	sim, err := e.Simulate(member, params)
	if err != nil {
		return 0, err
	}
	return lf.Evaluate(e.observations, sim), nil
}

// Simulate runs one parameter vector across all chunks and returns the
// full-timeline trajectory [state][time]. Column 0 is NaN: the initial
// condition is given, not simulated.
func (e *Evaluator) Simulate(member int, params []float64) ([][]float64, error) {
	nStates := len(e.initialState)
	nTimes := e.timeline.NumTimes()

	state := append([]float64(nil), e.initialState...)
	sim := make([][]float64, nStates)
	for s := range sim {
		sim[s] = make([]float64, nTimes)
		sim[s][0] = math.NaN()
	}

	for k := 0; k < e.timeline.NumChunks(); k++ {
		indices := e.timeline.Indices(k)
		stateIn := append([]float64(nil), state...)

		model := e.models.Create(stateIn, params, e.timeline.Forcing(k), e.timeline.Times(k))
		chunk, err := model.Evaluate()
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", k, err)
		}
		if len(chunk) != nStates {
			return nil, &DimensionMismatchError{
				What:     fmt.Sprintf("chunk %d simulated states", k),
				Expected: nStates,
				Actual:   len(chunk),
			}
		}

		for s := 0; s < nStates; s++ {
			if len(chunk[s]) != len(indices) {
				return nil, &DimensionMismatchError{
					What:     fmt.Sprintf("chunk %d state %d time points", k, s),
					Expected: len(indices),
					Actual:   len(chunk[s]),
				}
			}
			for j := 1; j < len(indices); j++ {
				sim[s][indices[j]] = chunk[s][j]
			}
			state[s] = chunk[s][len(indices)-1]
		}

		if e.observer != nil {
			e.observer(member, k, stateIn, append([]float64(nil), state...))
		}
	}

	return sim, nil
}
