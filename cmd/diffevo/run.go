package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/diffevo/internal/config"
	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/problems"
	"github.com/cwbudde/diffevo/internal/report"
	"github.com/cwbudde/diffevo/internal/store"
)

var (
	runConfigPath string
	problemName   string
	generations   int
	popSize       int
	seed          int64
	workers       int
	outDir        string
	storeKind     string
	burnIn        int
	histBins      int
	writePlots    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a DE-MC sampling run",
	Long: `Samples the posterior of a registered problem, stores the ledger and
run record under the output directory, writes a tab separated ledger
export and plots, and prints a summary of the post burn-in samples.

Settings are read from --config (or diffevo.yaml when present); flags
given on the command line override the file.`,
	RunE: runSampling,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "YAML run configuration (default diffevo.yaml if present)")
	runCmd.Flags().StringVar(&problemName, "problem", "doublenormal", "Problem to sample (see \"diffevo problems\")")
	runCmd.Flags().IntVar(&generations, "generations", 300, "Number of generations")
	runCmd.Flags().IntVar(&popSize, "pop", 50, "Population size")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Parallel evaluation workers")
	runCmd.Flags().StringVar(&outDir, "out-dir", "./data", "Base directory for run output")
	runCmd.Flags().StringVar(&storeKind, "store", store.BackendFS, "Run store backend (fs, sqlite)")
	runCmd.Flags().IntVar(&burnIn, "burn-in", 0, "Generations discarded before summarizing")
	runCmd.Flags().IntVar(&histBins, "bins", 0, "Histogram bins (0 = use the parameter intervals)")
	runCmd.Flags().BoolVar(&writePlots, "plots", true, "Write histogram, scatter and trace plots")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags copies every flag set on the command line into cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("problem") {
		cfg.Problem = problemName
	}
	if flags.Changed("generations") {
		cfg.Generations = generations
	}
	if flags.Changed("pop") {
		cfg.PopulationSize = popSize
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("out-dir") {
		cfg.OutputDir = outDir
	}
	if flags.Changed("store") {
		cfg.Store = storeKind
	}
	if flags.Changed("burn-in") {
		cfg.BurnIn = burnIn
	}
	if flags.Changed("bins") {
		cfg.HistogramBins = histBins
	}
	if flags.Changed("plots") {
		cfg.Plots = writePlots
	}
}

func runSampling(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err = executeRun(cfg, cmd.OutOrStdout())
	return err
}

// executeRun samples cfg.Problem and writes every output of the run. It
// returns the persisted run record.
func executeRun(cfg *config.RunConfig, out io.Writer) (*store.RunRecord, error) {
	def, err := problems.Lookup(cfg.Problem)
	if err != nil {
		return nil, err
	}
	inst, err := def.Build()
	if err != nil {
		return nil, err
	}

	engine, err := demc.New(cfg.Engine(), inst.Problem)
	if err != nil {
		return nil, err
	}
	engine.OnGeneration(func(r demc.GenerationReport) {
		slog.Debug("Generation complete",
			"generation", r.Generation,
			"accepted", r.Accepted,
			"best_score", r.Best.Score,
		)
	})

	slog.Info("Starting sampling run",
		"problem", cfg.Problem,
		"generations", cfg.Generations,
		"population_size", cfg.PopulationSize,
		"seed", cfg.Seed,
	)

	start := time.Now()
	ledger, err := engine.Run()
	if err != nil {
		return nil, fmt.Errorf("sampling failed: %w", err)
	}
	elapsed := time.Since(start)

	best, ok := ledger.Best()
	if !ok {
		return nil, fmt.Errorf("run produced no finite score")
	}
	sum, err := report.Summarize(ledger, inst.Space, cfg.PopulationSize, cfg.BurnIn)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize run: %w", err)
	}

	runStore, err := store.Open(cfg.Store, cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.CloseIfSupported(runStore)

	runID := store.NewRunID()
	record := store.NewRunRecord(runID, inst.Space.Names(), best, ledger.Len(), cfg.Record())
	record.AcceptanceRate = sum.AcceptanceRate
	record.Elapsed = elapsed

	if err := runStore.SaveLedger(runID, ledger); err != nil {
		return nil, fmt.Errorf("failed to save ledger: %w", err)
	}
	if err := runStore.SaveRun(runID, record); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	dir := artifactDir(cfg.OutputDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := writeLedgerText(filepath.Join(dir, "ledger.txt"), ledger, inst); err != nil {
		return nil, err
	}
	if err := cfg.Write(filepath.Join(dir, "config.yaml")); err != nil {
		return nil, err
	}

	if cfg.Plots {
		kept, err := report.AfterBurnIn(ledger, cfg.PopulationSize, cfg.BurnIn)
		if err != nil {
			return nil, err
		}
		if _, err := report.MarginalHistograms(kept, inst.Space, dir, cfg.HistogramBins); err != nil {
			return nil, err
		}
		if _, err := report.ScatterMatrix(kept, inst.Space, dir); err != nil {
			return nil, err
		}
		if _, err := report.HeatmapMatrix(kept, inst.Space, dir); err != nil {
			return nil, err
		}
		if err := report.ScoreTrace(ledger, cfg.PopulationSize, filepath.Join(dir, "score_trace.png")); err != nil {
			return nil, err
		}
	}

	slog.Info("Sampling run complete",
		"run_id", runID,
		"elapsed", elapsed,
		"samples", ledger.Len(),
		"best_score", best.Score,
		"acceptance_rate", sum.AcceptanceRate,
	)

	fmt.Fprintf(out, "Run %s written to %s\n", runID, dir)
	if err := report.WriteSummary(out, sum); err != nil {
		return nil, err
	}
	return record, nil
}

// artifactDir is where the text export and plots of a run are written.
// For the fs backend it is also the directory holding the run record.
func artifactDir(dataDir, runID string) string {
	return filepath.Join(dataDir, "runs", runID)
}

func writeLedgerText(path string, ledger *demc.Ledger, inst *problems.Instance) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := report.WriteText(f, ledger, inst.Space); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
