package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/diffevo/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the body of GET /api/v1/jobs/:id/status.
type jobStatus struct {
	server.Job
	Elapsed        float64 `json:"elapsed"`
	EvalsPerSecond float64 `json:"evalsPerSecond"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), serverURL)
	}
	return getJobStatus(cmd.OutOrStdout(), serverURL, args[0])
}

func listJobs(out io.Writer, baseURL string) error {
	resp, err := http.Get(baseURL + "/api/v1/jobs")
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Problem: %s\n", job.Config.Problem)
		fmt.Fprintf(out, "  Generation: %d/%d\n", job.Generation, job.Config.Generations)
		if !math.IsNaN(float64(job.BestScore)) {
			fmt.Fprintf(out, "  Best Score: %g\n", float64(job.BestScore))
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(out io.Writer, baseURL, jobID string) error {
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/jobs/%s/status", baseURL, jobID))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Problem: %s\n", status.Config.Problem)
	fmt.Fprintf(out, "  Generations: %d\n", status.Config.Generations)
	fmt.Fprintf(out, "  Population: %d\n", status.Config.PopulationSize)
	fmt.Fprintf(out, "  Seed: %d\n", status.Config.Seed)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Generation: %d\n", status.Generation)
	fmt.Fprintf(out, "  Samples: %d\n", status.Samples)
	if !math.IsNaN(float64(status.BestScore)) {
		fmt.Fprintf(out, "  Best Score: %g\n", float64(status.BestScore))
		for i, name := range status.ParamNames {
			if i < len(status.BestParams) {
				fmt.Fprintf(out, "    %s = %g\n", name, status.BestParams[i])
			}
		}
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.EvalsPerSecond > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f evals/sec\n", status.EvalsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
