package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwbudde/diffevo/internal/problems"
	"github.com/cwbudde/diffevo/internal/report"
	"github.com/cwbudde/diffevo/internal/store"
)

var (
	runsDataDir   string
	runsStore     string
	keepLast      int
	olderThanDays int
	forceClean    bool
	showLedger    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored sampling runs",
	Long:  `List, inspect and clean the runs persisted by "diffevo run" and "diffevo serve".`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Long:  `Display all runs with run ID, problem, timestamp, sample count, best score and size on disk.`,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored run",
	Long:  `Prints the run record and a summary of its post burn-in samples.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep only the newest N runs or delete runs older than N days.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for run storage")
	runsCmd.PersistentFlags().StringVar(&runsStore, "store", store.BackendFS, "Run store backend (fs, sqlite)")

	showRunCmd.Flags().BoolVar(&showLedger, "ledger", false, "Also print the full ledger as tab separated values")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := store.Open(runsStore, runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.CloseIfSupported(runStore)

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tPROBLEM\tFINISHED\tSAMPLES\tBEST SCORE\tFILES")
	fmt.Fprintln(w, "------\t-------\t--------\t-------\t----------\t-----")

	for _, info := range infos {
		size, err := getDirSize(artifactDir(runsDataDir, info.RunID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = humanize.IBytes(uint64(size))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.6g\t%s\n",
			shortID(info.RunID),
			info.Problem,
			humanize.Time(info.Timestamp),
			info.Samples,
			float64(info.BestScore),
			sizeStr,
		)
	}

	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runStore, err := store.Open(runsStore, runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.CloseIfSupported(runStore)
	return showRun(cmd.OutOrStdout(), runStore, args[0], showLedger)
}

func showRun(out io.Writer, runStore store.Store, runID string, withLedger bool) error {
	record, err := runStore.LoadRun(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run: %s\n", record.RunID)
	fmt.Fprintf(out, "Problem: %s\n", record.Config.Problem)
	fmt.Fprintf(out, "Finished: %s (%s)\n", record.Timestamp.Format("2006-01-02 15:04:05"), record.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Generations: %d  Population: %d  Seed: %d\n",
		record.Config.Generations, record.Config.PopulationSize, record.Config.Seed)
	fmt.Fprintf(out, "Best: id=%d score=%g\n", record.BestID, float64(record.BestScore))
	for i, name := range record.ParamNames {
		fmt.Fprintf(out, "  %s = %g\n", name, record.BestParams[i])
	}
	fmt.Fprintln(out)

	def, err := problems.Lookup(record.Config.Problem)
	if err != nil {
		return err
	}
	inst, err := def.Build()
	if err != nil {
		return err
	}
	ledger, err := runStore.LoadLedger(runID)
	if err != nil {
		return err
	}
	sum, err := report.Summarize(ledger, inst.Space, record.Config.PopulationSize, record.Config.BurnIn)
	if err != nil {
		return err
	}
	if err := report.WriteSummary(out, sum); err != nil {
		return err
	}

	if withLedger {
		fmt.Fprintln(out)
		return report.WriteText(out, ledger, inst.Space)
	}
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := store.Open(runsStore, runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.CloseIfSupported(runStore)

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			shortID(info.RunID),
			info.Problem,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted, failed := deleteRuns(runStore, runsDataDir, toDelete)
	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// deleteRuns removes each run from the store together with its text
// export and plots.
func deleteRuns(runStore store.Store, dataDir string, infos []store.RunInfo) (deleted, failed int) {
	for _, info := range infos {
		if err := runStore.DeleteRun(info.RunID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
			continue
		}
		if err := os.RemoveAll(artifactDir(dataDir, info.RunID)); err != nil {
			slog.Warn("Failed to remove run artifacts", "run_id", info.RunID, "error", err)
		}
		slog.Info("Deleted run", "run_id", info.RunID)
		deleted++
	}
	return deleted, failed
}

// selectRunsForDeletion applies the retention policy. A run is selected
// when it is older than olderThanDays or falls outside the newest keepLast
// runs. Zero disables a criterion. The result is ordered oldest first.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, now time.Time) []store.RunInfo {
	sorted := make([]store.RunInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RunInfo
	for i, info := range sorted {
		if i < excess || (olderThanDays > 0 && info.Timestamp.Before(cutoff)) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
