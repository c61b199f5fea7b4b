package store

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/diffevo/internal/demc"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), SQLiteFile))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLiteStore_RunRoundTrip(t *testing.T) {
	s := setupSQLiteStore(t)
	record := createTestRecord("run-1")

	if err := s.SaveRun("run-1", record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := s.LoadRun("run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.RunID != record.RunID || loaded.BestID != record.BestID || loaded.Samples != record.Samples {
		t.Errorf("Loaded record differs: %+v", loaded)
	}
	if len(loaded.BestParams) != len(record.BestParams) {
		t.Errorf("Expected %d params, got %d", len(record.BestParams), len(loaded.BestParams))
	}

	record.BestScore = -1
	if err := s.SaveRun("run-1", record); err != nil {
		t.Fatalf("Overwriting SaveRun failed: %v", err)
	}
	loaded, _ = s.LoadRun("run-1")
	if loaded.BestScore != -1 {
		t.Errorf("Expected overwritten score -1, got %v", loaded.BestScore)
	}
}

func TestSQLiteStore_InvalidArguments(t *testing.T) {
	s := setupSQLiteStore(t)

	if err := s.SaveRun("", createTestRecord("")); err == nil {
		t.Error("Expected error for empty runID")
	}
	if err := s.SaveRun("a", nil); err == nil {
		t.Error("Expected error for nil record")
	}
	if err := s.SaveRun("a", createTestRecord("b")); err == nil {
		t.Error("Expected error for mismatched runID")
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := setupSQLiteStore(t)

	if _, err := s.LoadRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadRun: expected ErrNotFound, got %v", err)
	}
	if _, err := s.LoadLedger("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadLedger: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteRun: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	s := setupSQLiteStore(t)

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("Expected empty list, got %d", len(infos))
	}

	base := time.Now()
	for i, id := range []string{"old", "new", "mid"} {
		record := createTestRecord(id)
		record.Timestamp = base.Add(time.Duration([]int{-2, 0, -1}[i]) * time.Hour)
		if err := s.SaveRun(id, record); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	infos, err = s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	want := []string{"new", "mid", "old"}
	if len(infos) != len(want) {
		t.Fatalf("Expected %d runs, got %d", len(want), len(infos))
	}
	for i := range want {
		if infos[i].RunID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], infos[i].RunID)
		}
	}
}

func TestSQLiteStore_LedgerRoundTrip(t *testing.T) {
	s := setupSQLiteStore(t)

	ledger := demc.NewLedger(4)
	ledger.Record([]float64{1, 2}, -3)
	ledger.Record([]float64{0.5, -1}, math.NaN())
	ledger.Record([]float64{4, 4}, math.Inf(-1))
	ledger.Record([]float64{2, 2}, -0.25)

	if err := s.SaveLedger("run-1", ledger); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}
	loaded, err := s.LoadLedger("run-1")
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if loaded.Len() != 4 {
		t.Fatalf("Expected 4 samples, got %d", loaded.Len())
	}
	if !math.IsNaN(loaded.At(1).Score) || !math.IsInf(loaded.At(2).Score, -1) {
		t.Errorf("Non-finite scores not preserved: %v, %v", loaded.At(1).Score, loaded.At(2).Score)
	}
	if loaded.At(3).Params[0] != 2 || loaded.At(3).Score != -0.25 {
		t.Errorf("Unexpected last sample %+v", loaded.At(3))
	}

	// Saving again replaces the ledger.
	short := demc.NewLedger(1)
	short.Record([]float64{9, 9}, -9)
	if err := s.SaveLedger("run-1", short); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}
	loaded, _ = s.LoadLedger("run-1")
	if loaded.Len() != 1 {
		t.Errorf("Expected replaced ledger of 1 sample, got %d", loaded.Len())
	}
}

func TestSQLiteStore_DeleteRun(t *testing.T) {
	s := setupSQLiteStore(t)

	ledger := demc.NewLedger(1)
	ledger.Record([]float64{1}, -1)
	if err := s.SaveRun("run-1", createTestRecord("run-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.SaveLedger("run-1", ledger); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}

	if err := s.DeleteRun("run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := s.LoadRun("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run still present after delete: %v", err)
	}
	if _, err := s.LoadLedger("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ledger still present after delete: %v", err)
	}
}

func TestSQLiteStore_Closed(t *testing.T) {
	s := setupSQLiteStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.ListRuns(); err == nil {
		t.Error("Expected error from closed store")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	fsStore, err := Open(BackendFS, dir)
	if err != nil {
		t.Fatalf("Open fs failed: %v", err)
	}
	if _, ok := fsStore.(*FSStore); !ok {
		t.Errorf("Expected *FSStore, got %T", fsStore)
	}
	if err := CloseIfSupported(fsStore); err != nil {
		t.Errorf("CloseIfSupported(fs) failed: %v", err)
	}

	sqlStore, err := Open(BackendSQLite, filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	if _, ok := sqlStore.(*SQLiteStore); !ok {
		t.Errorf("Expected *SQLiteStore, got %T", sqlStore)
	}
	if err := CloseIfSupported(sqlStore); err != nil {
		t.Errorf("CloseIfSupported(sqlite) failed: %v", err)
	}

	if _, err := Open("mongo", dir); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
