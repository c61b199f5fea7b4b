package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/diffevo/internal/store"
)

func testInfos(now time.Time) []store.RunInfo {
	return []store.RunInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}
}

func ids(infos []store.RunInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.RunID
	}
	return out
}

func TestSelectRunsForDeletion(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name          string
		keepLast      int
		olderThanDays int
		want          []string
	}{
		{name: "by age", olderThanDays: 7, want: []string{"run4", "run1"}},
		{name: "by count", keepLast: 2, want: []string{"run4", "run1"}},
		{name: "combined", keepLast: 3, olderThanDays: 7, want: []string{"run4", "run1"}},
		{name: "count dominates", keepLast: 1, olderThanDays: 20, want: []string{"run4", "run1", "run2"}},
		{name: "keep more than exist", keepLast: 10},
		{name: "nothing old enough", olderThanDays: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(selectRunsForDeletion(testInfos(now), tt.keepLast, tt.olderThanDays, now))
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestSelectRunsForDeletion_DoesNotReorderInput(t *testing.T) {
	now := time.Now()
	infos := testInfos(now)
	selectRunsForDeletion(infos, 1, 0, now)

	if infos[0].RunID != "run1" || infos[3].RunID != "run4" {
		t.Errorf("Input slice was reordered: %v", ids(infos))
	}
}

func TestGetDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := getDirSize(dir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size != 150 {
		t.Errorf("Expected 150 bytes, got %d", size)
	}

	if _, err := getDirSize(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}
