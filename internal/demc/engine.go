package demc

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/diffevo/internal/timeline"
)

// Fixed DE-MC control parameters.
const (
	// ScaleF weighs the pull of the target towards its first donor.
	ScaleF = 0.6
	// ScaleK weighs the difference between the second and third donors.
	ScaleK = 0.4

	numDonors = 3
)

// DefaultSeed is used when no seed is configured, so runs are reproducible.
const DefaultSeed int64 = 0

// Config holds the engine settings.
type Config struct {
	Generations    int   // Total generations, the initial population counts as generation 1
	PopulationSize int   // Number of slots, at least MinPopulationSize
	Seed           int64 // Random seed
	Workers        int   // Concurrent evaluations per generation (<= 1 means sequential)
}

// DefaultConfig returns the settings used by the bundled problems.
func DefaultConfig() Config {
	return Config{
		Generations:    300,
		PopulationSize: 50,
		Seed:           DefaultSeed,
		Workers:        1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Generations < 1 {
		return &ConfigError{Field: "Generations", Reason: "must be at least 1"}
	}
	if c.PopulationSize < MinPopulationSize {
		return &InsufficientPopulationError{Size: c.PopulationSize}
	}
	return nil
}

// Problem bundles the pluggable strategies of a run. A nil Models selects
// direct mode, in which Observations, InitialState and Timeline are unused.
type Problem struct {
	Space        Space
	Likelihood   LikelihoodFactory
	Models       ModelFactory
	Observations [][]float64
	InitialState []float64
	Timeline     *timeline.Timeline
}

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateError is returned when an operation is called out of order.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed in state %s", e.Op, e.State)
}

// GenerationReport summarizes one completed generation.
type GenerationReport struct {
	Generation int
	Accepted   int
	Best       Sample
	Samples    int
}

// Engine runs Differential Evolution Markov Chain sampling. It owns the
// parent and proposal populations and the random stream; every random draw
// of a run comes from that single stream in a fixed order, so a seed fully
// determines the ledger.
type Engine struct {
	cfg       Config
	space     Space
	evaluator *Evaluator
	rng       *rand.Rand
	ledger    *Ledger

	parents    Population
	proposals  Population
	generation int
	state      State

	onGeneration func(GenerationReport)
}

// New creates an engine for the given problem.
func New(cfg Config, problem Problem) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if problem.Space == nil {
		return nil, &ConfigError{Field: "Space", Reason: "cannot be nil"}
	}
	if problem.Likelihood == nil {
		return nil, &ConfigError{Field: "Likelihood", Reason: "cannot be nil"}
	}

	var evaluator *Evaluator
	if problem.Models != nil {
		var err error
		evaluator, err = NewSimulationEvaluator(problem.Observations, problem.InitialState,
			problem.Timeline, problem.Models, problem.Likelihood)
		if err != nil {
			return nil, err
		}
	} else {
		evaluator = NewDirectEvaluator(problem.Likelihood)
	}
	evaluator.SetWorkers(cfg.Workers)

	return &Engine{
		cfg:       cfg,
		space:     problem.Space,
		evaluator: evaluator,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		ledger:    NewLedger(cfg.PopulationSize * cfg.Generations),
		state:     StateUninitialized,
	}, nil
}

// OnGeneration registers a callback invoked after every completed
// generation, including the initial population.
func (e *Engine) OnGeneration(fn func(GenerationReport)) {
	e.onGeneration = fn
}

// SetChunkObserver forwards a chunk observer to the evaluator.
func (e *Engine) SetChunkObserver(obs ChunkObserver) {
	e.evaluator.SetObserver(obs)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Generation returns the number of completed generations.
func (e *Engine) Generation() int {
	return e.generation
}

// Ledger returns the run's ledger.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Parents returns a copy of the current parent population.
func (e *Engine) Parents() Population {
	return e.parents.Clone()
}

// Proposals returns a copy of the pending proposals, nil if none.
func (e *Engine) Proposals() Population {
	if e.proposals == nil {
		return nil
	}
	return e.proposals.Clone()
}

// Run initializes the population and evolves it for the configured number
// of generations, returning the completed ledger.
func (e *Engine) Run() (*Ledger, error) {
	start := time.Now()
	slog.Info("Starting DE-MC run",
		"generations", e.cfg.Generations,
		"population_size", e.cfg.PopulationSize,
		"seed", e.cfg.Seed,
		"simulation", e.evaluator.Simulating(),
	)

	if err := e.Initialize(); err != nil {
		return nil, err
	}
	for g := 2; g <= e.cfg.Generations; g++ {
		if err := e.ProposeOffspring(); err != nil {
			return nil, fmt.Errorf("generation %d: %w", g, err)
		}
		if err := e.AcceptReject(); err != nil {
			return nil, fmt.Errorf("generation %d: %w", g, err)
		}
	}

	best, _ := e.ledger.Best()
	slog.Info("DE-MC run complete",
		"elapsed", time.Since(start),
		"samples", e.ledger.Len(),
		"best_score", best.Score,
		"best_id", best.ID,
	)
	return e.ledger, nil
}

// Initialize draws the initial population uniformly from the parameter
// space, scores it and records every member in slot order.
func (e *Engine) Initialize() error {
	if e.state != StateUninitialized {
		return &StateError{Op: "initialize", State: e.state}
	}

	vectors := make([][]float64, e.cfg.PopulationSize)
	for i := range vectors {
		vectors[i] = e.space.UniformSample(e.rng)
		if len(vectors[i]) != e.space.NumberOfDimensions() {
			return &DimensionMismatchError{
				What:     "uniform sample",
				Expected: e.space.NumberOfDimensions(),
				Actual:   len(vectors[i]),
			}
		}
	}

	scored, err := e.evaluator.Evaluate(newPopulation(vectors))
	if err != nil {
		return fmt.Errorf("failed to evaluate initial population: %w", err)
	}

	parents := make(Population, len(scored))
	for i, s := range scored {
		parents[i] = e.ledger.Record(s.Params, s.Score)
	}
	e.parents = parents
	e.generation = 1
	e.state = StateInitialized
	if e.generation >= e.cfg.Generations {
		e.state = StateTerminal
	}

	e.report(0)
	return nil
}

// ProposeOffspring builds one proposal per slot from three distinct donors,
// reflects the proposals into bounds and scores them.
//
// For target slot i with donors r0, r1, r2 (drawn in that order):
//
//	proposal = x_i + F*(x_r0 - x_i) + K*(x_r2 - x_r1)
func (e *Engine) ProposeOffspring() error {
	n := e.cfg.PopulationSize
	if n < MinPopulationSize {
		return &InsufficientPopulationError{Size: n}
	}
	if e.state != StateInitialized && e.state != StateRunning {
		return &StateError{Op: "propose offspring", State: e.state}
	}
	if e.proposals != nil {
		return &StateError{Op: "propose offspring (proposals pending)", State: e.state}
	}

	nDims := e.space.NumberOfDimensions()
	vectors := make([][]float64, n)
	for i := 0; i < n; i++ {
		donors := e.drawDonors(i)
		target := e.parents[i].Params
		r0 := e.parents[donors[0]].Params
		r1 := e.parents[donors[1]].Params
		r2 := e.parents[donors[2]].Params

		proposal := make([]float64, nDims)
		for d := 0; d < nDims; d++ {
			dist1 := r0[d] - target[d]
			dist2 := r2[d] - r1[d]
			proposal[d] = target[d] + ScaleF*dist1 + ScaleK*dist2
		}
		vectors[i] = proposal
	}

	if err := e.space.ReflectAll(vectors); err != nil {
		return fmt.Errorf("failed to reflect proposals: %w", err)
	}

	scored, err := e.evaluator.Evaluate(newPopulation(vectors))
	if err != nil {
		return fmt.Errorf("failed to evaluate proposals: %w", err)
	}
	e.proposals = scored
	e.state = StateRunning
	return nil
}

// drawDonors draws three slot indices, redrawing until they differ from
// target and from each other.
func (e *Engine) drawDonors(target int) [numDonors]int {
	donors := [numDonors]int{-1, -1, -1}
	for k := 0; k < numDonors; k++ {
		for {
			idx := e.rng.Intn(e.cfg.PopulationSize)
			if idx != target && idx != donors[0] && idx != donors[1] && idx != donors[2] {
				donors[k] = idx
				break
			}
		}
	}
	return donors
}

// AcceptReject applies the Metropolis rule to every slot: the proposal
// replaces the parent when proposalScore - parentScore >= ln(u) with u drawn
// from (0,1). Comparisons follow IEEE-754, so a NaN difference rejects.
// Every slot appends its resulting sample to the ledger.
func (e *Engine) AcceptReject() error {
	if e.state != StateRunning || e.proposals == nil {
		return &StateError{Op: "accept/reject", State: e.state}
	}

	next := make(Population, len(e.parents))
	accepted := 0
	for i := range e.parents {
		parent := e.parents[i]
		proposal := e.proposals[i]
		logU := math.Log(e.uniformOpen())

		resident := parent
		if proposal.Score-parent.Score >= logU {
			resident = proposal
			accepted++
		}
		next[i] = e.ledger.Record(resident.Params, resident.Score)
	}

	e.parents = next
	e.proposals = nil
	e.generation++
	if e.generation >= e.cfg.Generations {
		e.state = StateTerminal
	}

	e.report(accepted)
	return nil
}

// uniformOpen draws from the open interval (0,1).
func (e *Engine) uniformOpen() float64 {
	for {
		if u := e.rng.Float64(); u > 0 {
			return u
		}
	}
}

func (e *Engine) report(accepted int) {
	var best Sample
	if idx := e.parents.Best(); idx >= 0 {
		best = e.parents[idx]
	}

	slog.Debug("Generation complete",
		"generation", e.generation,
		"accepted", accepted,
		"best_score", best.Score,
		"samples", e.ledger.Len(),
	)

	if e.onGeneration != nil {
		e.onGeneration(GenerationReport{
			Generation: e.generation,
			Accepted:   accepted,
			Best:       copySample(best),
			Samples:    e.ledger.Len(),
		})
	}
}
