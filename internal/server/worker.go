package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/parspace"
	"github.com/cwbudde/diffevo/internal/problems"
	"github.com/cwbudde/diffevo/internal/report"
	"github.com/cwbudde/diffevo/internal/store"
)

// runJob executes a sampling job in the background.
// If runStore is not nil, the finished run and its ledger are persisted.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.State != StatePending {
		return fmt.Errorf("job %s is %s, not pending", jobID, job.State)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	def, err := problems.Lookup(job.Config.Problem)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	inst, err := def.Build()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	engine, err := demc.New(job.Config.EngineConfig(), inst.Problem)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	engine.OnGeneration(func(r demc.GenerationReport) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Generation = r.Generation
			j.Accepted = r.Accepted
			j.Samples = r.Samples
			j.BestParams = r.Best.Params
			j.BestScore = store.Score(r.Best.Score)
		})
	})

	started := false
	err = jm.UpdateJob(jobID, func(j *Job) {
		if j.State != StatePending {
			return // cancelled while building
		}
		started = true
		j.State = StateRunning
		j.ParamNames = inst.Space.Names()
		j.ledger = engine.Ledger()
		j.cancel = cancel
	})
	if err != nil {
		return err
	}
	if !started {
		if j, ok := jm.GetJob(jobID); ok && j.Done() {
			jm.broadcaster.Broadcast(progressFromJob(j))
		}
		return context.Canceled
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"problem", job.Config.Problem,
		"generations", job.Config.Generations,
		"population_size", job.Config.PopulationSize,
	)

	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	err = evolve(ctx, engine)
	close(progressDone)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	ledger := engine.Ledger()
	best, _ := ledger.Best()
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestParams = best.Params
		j.BestScore = store.Score(best.Score)
		j.Samples = ledger.Len()
		j.EndTime = &endTime
		j.cancel = nil
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"samples", ledger.Len(),
		"best_score", best.Score,
	)

	if runStore != nil {
		if err := persistRun(runStore, jobID, job.Config, inst.Space, ledger, elapsed); err != nil {
			slog.Error("Failed to persist run", "job_id", jobID, "error", err)
		} else {
			jm.UpdateJob(jobID, func(j *Job) { j.Persisted = true })
		}
	}

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressFromJob(job))
	}

	return nil
}

// evolve steps the engine one generation at a time so cancellation is
// honored between generations.
func evolve(ctx context.Context, engine *demc.Engine) error {
	if err := engine.Initialize(); err != nil {
		return err
	}
	for engine.State() != demc.StateTerminal {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := engine.ProposeOffspring(); err != nil {
			return fmt.Errorf("generation %d: %w", engine.Generation()+1, err)
		}
		if err := engine.AcceptReject(); err != nil {
			return fmt.Errorf("generation %d: %w", engine.Generation()+1, err)
		}
	}
	return nil
}

// persistRun saves the run record and ledger of a completed job.
func persistRun(runStore store.Store, jobID string, config JobConfig, space *parspace.Space, ledger *demc.Ledger, elapsed time.Duration) error {
	best, ok := ledger.Best()
	if !ok {
		return fmt.Errorf("ledger has no best sample")
	}

	record := store.NewRunRecord(jobID, space.Names(), best, ledger.Len(), config)
	record.Elapsed = elapsed
	if sum, err := report.Summarize(ledger, space, config.PopulationSize, config.BurnIn); err == nil {
		record.AcceptanceRate = sum.AcceptanceRate
	} else {
		slog.Warn("Failed to summarize run", "job_id", jobID, "error", err)
	}

	if err := runStore.SaveLedger(jobID, ledger); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	if err := runStore.SaveRun(jobID, record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	slog.Info("Run persisted", "job_id", jobID, "samples", ledger.Len())
	return nil
}

// monitorProgress periodically broadcasts progress events while the job runs
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(progressFromJob(job))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
		j.cancel = nil
	})
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressFromJob(job))
	}
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
		j.cancel = nil
	})
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressFromJob(job))
	}
	slog.Info("Job cancelled", "job_id", jobID)
}
