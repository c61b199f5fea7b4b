package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/cwbudde/diffevo/internal/demc"
)

// SQLiteFile is the database file name used by Open for the sqlite backend.
const SQLiteFile = "diffevo.db"

// SQLiteStore keeps run records and ledgers in a single SQLite database.
// Records and ledger entries are stored as their JSON encoding so both
// backends share one wire format.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// Writers are serialized on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{path: path, db: db}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(runID string, record *RunRecord) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.RunID != runID {
		return fmt.Errorf("record runID %q does not match %q", record.RunID, runID)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}

	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO runs (run_id, finished_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			payload = excluded.payload
	`, runID, record.Timestamp.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", runID, err)
	}

	slog.Debug("Run saved", "run_id", runID, "path", s.path)
	return nil
}

// LoadRun reads a run record.
func (s *SQLiteStore) LoadRun(runID string) (*RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRow(`SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var record RunRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &record, nil
}

// ListRuns returns all runs, newest first. Undecodable rows are skipped.
func (s *SQLiteStore) ListRuns() ([]RunInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT run_id, payload FROM runs ORDER BY finished_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	infos := []RunInfo{}
	for rows.Next() {
		var runID string
		var payload []byte
		if err := rows.Scan(&runID, &payload); err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		var record RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			slog.Warn("Skipping corrupt run record", "run_id", runID, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return infos, nil
}

// DeleteRun removes the record and the ledger of a run.
func (s *SQLiteStore) DeleteRun(runID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	if _, err := tx.Exec(`DELETE FROM samples WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete ledger of %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{RunID: runID}
	}
	return tx.Commit()
}

// SaveLedger replaces the stored ledger of a run in one transaction.
func (s *SQLiteStore) SaveLedger(runID string, ledger *demc.Ledger) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM samples WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear ledger of %s: %w", runID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (run_id, id, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sample := range ledger.Samples() {
		payload, err := json.Marshal(EntryFromSample(sample))
		if err != nil {
			return fmt.Errorf("failed to marshal sample %d: %w", sample.ID, err)
		}
		if _, err := stmt.Exec(runID, sample.ID, payload); err != nil {
			return fmt.Errorf("failed to save sample %d: %w", sample.ID, err)
		}
	}
	return tx.Commit()
}

// LoadLedger reads every stored sample of a run in identifier order.
func (s *SQLiteStore) LoadLedger(runID string) (*demc.Ledger, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT payload FROM samples WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger of %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry LedgerEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{RunID: runID}
	}
	return ledgerFromEntries(entries)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is closed")
	}
	return s.db, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			finished_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS samples (
			run_id TEXT NOT NULL,
			id INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, id)
		);
	`)
	return err
}
