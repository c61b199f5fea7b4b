package store

import "github.com/cwbudde/diffevo/internal/demc"

// Store defines the interface for run persistence operations.
// Implementations must be thread-safe and handle concurrent access gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically saves the record of a finished run.
	// If a record already exists for this runID, it is overwritten.
	// The implementation should use atomic write strategies (e.g., temp file + rename)
	// to prevent corruption in case of failures.
	SaveRun(runID string, record *RunRecord) error

	// LoadRun retrieves the record for the given run.
	// Returns ErrNotFound if no record exists for this runID.
	LoadRun(runID string) (*RunRecord, error)

	// ListRuns returns metadata for all stored runs.
	// The returned slice may be empty if no runs exist.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run and all associated artifacts:
	//   - run.json
	//   - ledger.jsonl
	//   - ledger.txt and plots
	//
	// Returns ErrNotFound if no run exists for this runID.
	DeleteRun(runID string) error

	// SaveLedger writes every sample of a run's ledger, replacing any
	// earlier ledger for this runID.
	SaveLedger(runID string, ledger *demc.Ledger) error

	// LoadLedger reads a stored ledger back into memory.
	// Returns ErrNotFound if no ledger exists for this runID.
	LoadLedger(runID string) (*demc.Ledger, error)
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run error.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
