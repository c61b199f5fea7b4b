package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/diffevo/internal/demc"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.Generations != 300 || cfg.PopulationSize != 50 || cfg.Seed != 0 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
problem: rosenbrock
generations: 120
population_size: 16
seed: 42
burn_in: 20
plots: false
store: sqlite
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Problem != "rosenbrock" || cfg.Generations != 120 || cfg.PopulationSize != 16 {
		t.Errorf("File values not applied: %+v", cfg)
	}
	if cfg.Seed != 42 || cfg.BurnIn != 20 || cfg.Plots || cfg.Store != "sqlite" {
		t.Errorf("File values not applied: %+v", cfg)
	}
	if cfg.Workers != 1 || cfg.OutputDir != "./data" {
		t.Errorf("Defaults lost for unset fields: %+v", cfg)
	}

	engine := cfg.Engine()
	if engine.Generations != 120 || engine.PopulationSize != 16 || engine.Seed != 42 {
		t.Errorf("Engine config mismatch: %+v", engine)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit file")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{name: "small population", content: "population_size: 3\n", target: demc.ErrInsufficientPopulation},
		{name: "bad yaml", content: "generations: [1, 2\n"},
		{name: "burn-in too large", content: "generations: 10\nburn_in: 10\n"},
		{name: "zero workers", content: "workers: 0\n"},
		{name: "unknown store", content: "store: mongo\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Problem = "cubic"
	cfg.Seed = 9

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Write(path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("Round trip mismatch: got %+v, want %+v", loaded, cfg)
	}
}

func TestRecord(t *testing.T) {
	cfg := Default()
	cfg.Problem = "rastrigin"
	cfg.BurnIn = 5
	cfg.Workers = 4

	rec := cfg.Record()
	if rec.Problem != "rastrigin" || rec.BurnIn != 5 || rec.Workers != 4 || rec.Generations != cfg.Generations {
		t.Errorf("Record mismatch: %+v", rec)
	}
}
