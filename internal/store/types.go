package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/diffevo/internal/demc"
)

// RunConfig holds the settings a run was started with (record copy).
// This avoids import cycles with the config and server packages.
type RunConfig struct {
	Problem        string `json:"problem"`
	Generations    int    `json:"generations"`
	PopulationSize int    `json:"populationSize"`
	Seed           int64  `json:"seed"`
	Workers        int    `json:"workers,omitempty"`
	BurnIn         int    `json:"burnIn,omitempty"`
}

// RunRecord is the persisted result of a finished sampling run. The full
// ledger lives next to it in ledger.jsonl; the record keeps what is needed
// to list and compare runs without reading every sample.
type RunRecord struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// ParamNames names each dimension of BestParams
	ParamNames []string `json:"paramNames"`

	// BestParams is the highest-scoring parameter vector in the ledger
	BestParams []float64 `json:"bestParams"`

	// BestScore is the score of BestParams
	BestScore Score `json:"bestScore"`

	// BestID is the ledger identifier of the best sample
	BestID int `json:"bestId"`

	// Samples is the number of ledger entries (generations x population size)
	Samples int `json:"samples"`

	// AcceptanceRate is the fraction of moved slots after burn-in
	AcceptanceRate float64 `json:"acceptanceRate"`

	// Elapsed is the wall-clock duration of the run
	Elapsed time.Duration `json:"elapsed"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`

	Config RunConfig `json:"config"`
}

// RunInfo contains metadata about a run without the parameter data.
type RunInfo struct {
	RunID       string    `json:"runId"`
	Problem     string    `json:"problem"`
	BestScore   Score     `json:"bestScore"`
	Samples     int       `json:"samples"`
	Generations int       `json:"generations"`
	Seed        int64     `json:"seed"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// NewRunRecord creates a record from the best sample of a finished run.
func NewRunRecord(runID string, names []string, best demc.Sample, samples int, config RunConfig) *RunRecord {
	return &RunRecord{
		RunID:      runID,
		ParamNames: append([]string(nil), names...),
		BestParams: append([]float64(nil), best.Params...),
		BestScore:  Score(best.Score),
		BestID:     best.ID,
		Samples:    samples,
		Timestamp:  time.Now(),
		Config:     config,
	}
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:       r.RunID,
		Problem:     r.Config.Problem,
		BestScore:   r.BestScore,
		Samples:     r.Samples,
		Generations: r.Config.Generations,
		Seed:        r.Config.Seed,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks if the record has valid data.
// Returns an error if any required field is missing or invalid.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.BestParams) == 0 {
		return &ValidationError{Field: "BestParams", Reason: "cannot be empty"}
	}
	if len(r.ParamNames) != len(r.BestParams) {
		return &ValidationError{
			Field:  "ParamNames",
			Reason: fmt.Sprintf("length mismatch: %d names for %d params", len(r.ParamNames), len(r.BestParams)),
		}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.Problem == "" {
		return &ValidationError{Field: "Config.Problem", Reason: "cannot be empty"}
	}
	if r.Config.Generations <= 0 {
		return &ValidationError{Field: "Config.Generations", Reason: "must be positive"}
	}
	if r.Config.PopulationSize < demc.MinPopulationSize {
		return &ValidationError{Field: "Config.PopulationSize", Reason: fmt.Sprintf("must be at least %d", demc.MinPopulationSize)}
	}
	expected := r.Config.Generations * r.Config.PopulationSize
	if r.Samples != expected {
		return &ValidationError{
			Field:  "Samples",
			Reason: fmt.Sprintf("expected %d samples for %d generations of %d", expected, r.Config.Generations, r.Config.PopulationSize),
		}
	}
	if r.BestID < 0 || r.BestID >= r.Samples {
		return &ValidationError{Field: "BestID", Reason: "out of range"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// EngineConfig returns the sampler settings of the run.
func (c RunConfig) EngineConfig() demc.Config {
	return demc.Config{
		Generations:    c.Generations,
		PopulationSize: c.PopulationSize,
		Seed:           c.Seed,
		Workers:        c.Workers,
	}
}
