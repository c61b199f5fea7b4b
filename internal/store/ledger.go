package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cwbudde/diffevo/internal/demc"
)

// LedgerEntry is one ledger sample, serialized as a JSON line in
// ledger.jsonl.
type LedgerEntry struct {
	ID     int       `json:"id"`
	Params []float64 `json:"params"`
	Score  Score     `json:"score"`
}

// EntryFromSample converts a ledger sample.
func EntryFromSample(s demc.Sample) LedgerEntry {
	return LedgerEntry{ID: s.ID, Params: s.Params, Score: Score(s.Score)}
}

// Sample converts the entry back to a ledger sample.
func (e LedgerEntry) Sample() demc.Sample {
	return demc.Sample{ID: e.ID, Params: e.Params, Score: float64(e.Score)}
}

// EntriesFromSamples converts a slice of samples.
func EntriesFromSamples(samples []demc.Sample) []LedgerEntry {
	out := make([]LedgerEntry, len(samples))
	for i, s := range samples {
		out[i] = EntryFromSample(s)
	}
	return out
}

func ledgerPath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), "ledger.jsonl")
}

// LedgerWriter writes ledger entries to a JSONL file.
// It uses buffered I/O for performance and is safe for concurrent use.
type LedgerWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewLedgerWriter creates a new ledger writer for the given run.
// The file is created at <baseDir>/runs/<runID>/ledger.jsonl.
// If append is true, new entries are appended to an existing file.
func NewLedgerWriter(baseDir, runID string, append bool) (*LedgerWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := ledgerPath(baseDir, runID)

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}

	return &LedgerWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends an entry to the file.
// The entry is buffered and will be written on Flush() or Close().
func (lw *LedgerWriter) Write(entry LedgerEntry) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry %d: %w", entry.ID, err)
	}
	if _, err := lw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	if err := lw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// WriteSamples appends the given samples in order.
func (lw *LedgerWriter) WriteSamples(samples []demc.Sample) error {
	for _, s := range samples {
		if err := lw.Write(EntryFromSample(s)); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data to the file.
func (lw *LedgerWriter) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush ledger writer: %w", err)
	}
	if err := lw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the ledger file.
func (lw *LedgerWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		lw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := lw.file.Close(); err != nil {
		return fmt.Errorf("failed to close ledger file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the ledger file.
func (lw *LedgerWriter) Path() string {
	return lw.path
}

// LedgerReader reads ledger entries from a JSONL file.
type LedgerReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewLedgerReader creates a new ledger reader for the given run.
func NewLedgerReader(baseDir, runID string) (*LedgerReader, error) {
	file, err := os.Open(ledgerPath(baseDir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 64KB initial, 1MB max

	return &LedgerReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next entry from the file.
// Returns io.EOF when no more entries are available.
func (lr *LedgerReader) Read() (*LedgerEntry, error) {
	if !lr.scanner.Scan() {
		if err := lr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan ledger line: %w", err)
		}
		return nil, io.EOF
	}

	var entry LedgerEntry
	if err := json.Unmarshal(lr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries from the file.
func (lr *LedgerReader) ReadAll() ([]LedgerEntry, error) {
	var entries []LedgerEntry
	for {
		entry, err := lr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the ledger reader.
func (lr *LedgerReader) Close() error {
	if err := lr.file.Close(); err != nil {
		return fmt.Errorf("failed to close ledger file: %w", err)
	}
	return nil
}

// SaveLedger writes a complete ledger for a run, replacing any existing file.
func SaveLedger(baseDir, runID string, ledger *demc.Ledger) (string, error) {
	lw, err := NewLedgerWriter(baseDir, runID, false)
	if err != nil {
		return "", err
	}
	if err := lw.WriteSamples(ledger.Samples()); err != nil {
		lw.Close()
		return "", err
	}
	if err := lw.Close(); err != nil {
		return "", err
	}
	return lw.Path(), nil
}

// LoadLedger reads a stored ledger back into memory. Entries must carry the
// contiguous identifiers 0, 1, 2, ... in file order.
func LoadLedger(baseDir, runID string) (*demc.Ledger, error) {
	lr, err := NewLedgerReader(baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer lr.Close()

	entries, err := lr.ReadAll()
	if err != nil {
		return nil, err
	}
	return ledgerFromEntries(entries)
}

func ledgerFromEntries(entries []LedgerEntry) (*demc.Ledger, error) {
	ledger := demc.NewLedger(len(entries))
	for i, e := range entries {
		if e.ID != i {
			return nil, &ValidationError{Field: "ledger", Reason: fmt.Sprintf("entry %d has id %d", i, e.ID)}
		}
		ledger.Record(e.Params, float64(e.Score))
	}
	return ledger, nil
}
