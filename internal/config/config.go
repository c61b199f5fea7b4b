// Package config loads run settings from YAML files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/store"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "diffevo.yaml"

// RunConfig holds everything needed to start and report a sampling run.
type RunConfig struct {
	Problem        string `yaml:"problem"`
	Generations    int    `yaml:"generations"`
	PopulationSize int    `yaml:"population_size"`
	Seed           int64  `yaml:"seed"`
	Workers        int    `yaml:"workers"`
	OutputDir      string `yaml:"output_dir"`
	Store          string `yaml:"store"`
	BurnIn         int    `yaml:"burn_in"`
	HistogramBins  int    `yaml:"histogram_bins"`
	Plots          bool   `yaml:"plots"`
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Default returns the default run configuration.
func Default() *RunConfig {
	engine := demc.DefaultConfig()
	return &RunConfig{
		Problem:        "doublenormal",
		Generations:    engine.Generations,
		PopulationSize: engine.PopulationSize,
		Seed:           engine.Seed,
		Workers:        engine.Workers,
		OutputDir:      "./data",
		Store:          store.BackendFS,
		BurnIn:         0,
		HistogramBins:  0,
		Plots:          true,
	}
}

// Load reads a configuration file on top of the defaults. An empty path
// tries DefaultFile and falls back to the defaults when it does not exist.
func Load(path string) (*RunConfig, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *RunConfig) Validate() error {
	if c.Problem == "" {
		return &ValidationError{Field: "problem", Reason: "cannot be empty"}
	}
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return &ValidationError{Field: "workers", Reason: "must be at least 1"}
	}
	if c.BurnIn < 0 || c.BurnIn >= c.Generations {
		return &ValidationError{Field: "burn_in", Reason: fmt.Sprintf("must be in [0, %d)", c.Generations)}
	}
	if c.HistogramBins < 0 {
		return &ValidationError{Field: "histogram_bins", Reason: "cannot be negative"}
	}
	if c.OutputDir == "" {
		return &ValidationError{Field: "output_dir", Reason: "cannot be empty"}
	}
	if c.Store != store.BackendFS && c.Store != store.BackendSQLite {
		return &ValidationError{Field: "store", Reason: fmt.Sprintf("unknown backend %q", c.Store)}
	}
	return nil
}

// Record returns the settings stored with a finished run.
func (c *RunConfig) Record() store.RunConfig {
	return store.RunConfig{
		Problem:        c.Problem,
		Generations:    c.Generations,
		PopulationSize: c.PopulationSize,
		Seed:           c.Seed,
		Workers:        c.Workers,
		BurnIn:         c.BurnIn,
	}
}

// Engine returns the sampler settings.
func (c *RunConfig) Engine() demc.Config {
	return demc.Config{
		Generations:    c.Generations,
		PopulationSize: c.PopulationSize,
		Seed:           c.Seed,
		Workers:        c.Workers,
	}
}

// Write saves the configuration as YAML.
func (c *RunConfig) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
