package server

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is an alias to avoid duplication with store.RunConfig
type JobConfig = store.RunConfig

// Job represents a sampling job. Each job owns its engine and random
// stream, so concurrent jobs never share state.
type Job struct {
	ID         string      `json:"id"`
	State      JobState    `json:"state"`
	Config     JobConfig   `json:"config"`
	ParamNames []string    `json:"paramNames,omitempty"`
	BestParams []float64   `json:"bestParams,omitempty"`
	BestScore  store.Score `json:"bestScore"`
	Generation int         `json:"generation"`
	Accepted   int         `json:"accepted"`
	Samples    int         `json:"samples"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	Error      string      `json:"error,omitempty"`
	Persisted  bool        `json:"persisted"`

	ledger *demc.Ledger
	cancel context.CancelFunc
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	return j.State == StateCompleted || j.State == StateFailed || j.State == StateCancelled
}

func (j *Job) snapshot() *Job {
	cp := *j
	cp.ParamNames = append([]string(nil), j.ParamNames...)
	cp.BestParams = append([]float64(nil), j.BestParams...)
	if j.EndTime != nil {
		end := *j.EndTime
		cp.EndTime = &end
	}
	cp.cancel = nil
	return &cp
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		BestScore: store.Score(math.NaN()),
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job.snapshot()
}

// GetJob returns a snapshot of the job with the given ID. The snapshot is
// safe to read while the job keeps running.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// Ledger returns the live ledger of a job, nil before the job started.
func (jm *JobManager) Ledger(id string) (*demc.Ledger, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.ledger, true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartTime.Before(jobs[k].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// CancelJob stops a pending or running job. The worker notices the
// cancellation between generations.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	job, exists := jm.jobs[id]
	if !exists {
		jm.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Done() {
		jm.mu.Unlock()
		return fmt.Errorf("job %s already %s", id, job.State)
	}
	if job.cancel != nil {
		job.cancel()
		jm.mu.Unlock()
		return nil
	}

	// Not started yet; the worker will see the final state and skip it.
	endTime := time.Now()
	job.State = StateCancelled
	job.EndTime = &endTime
	final := progressFromJob(job)
	jm.mu.Unlock()

	jm.broadcaster.Broadcast(final)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}
