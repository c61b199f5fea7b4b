package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/diffevo/internal/store"
)

// ProgressEvent is one generation-level update of a job.
type ProgressEvent struct {
	JobID          string      `json:"jobId"`
	State          JobState    `json:"state"`
	Generation     int         `json:"generation"`
	Generations    int         `json:"generations"`
	Accepted       int         `json:"accepted"`
	AcceptanceRate float64     `json:"acceptanceRate"`
	Samples        int         `json:"samples"`
	BestScore      store.Score `json:"bestScore"`
	Persisted      bool        `json:"persisted"`
	Timestamp      time.Time   `json:"timestamp"`
}

// final reports whether no further events follow for the job.
func (e ProgressEvent) final() bool {
	return e.State != StatePending && e.State != StateRunning
}

func progressFromJob(job *Job) ProgressEvent {
	var rate float64
	if job.Config.PopulationSize > 0 {
		rate = float64(job.Accepted) / float64(job.Config.PopulationSize)
	}
	return ProgressEvent{
		JobID:          job.ID,
		State:          job.State,
		Generation:     job.Generation,
		Generations:    job.Config.Generations,
		Accepted:       job.Accepted,
		AcceptanceRate: rate,
		Samples:        job.Samples,
		BestScore:      job.BestScore,
		Persisted:      job.Persisted,
		Timestamp:      time.Now(),
	}
}

// EventBroadcaster fans progress events out to the stream subscribers of
// each job. Every subscriber holds at most one pending event: a newer event
// replaces an unread older one, so slow clients skip generations but always
// see the latest state, including the final one.
type EventBroadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[chan ProgressEvent]struct{}
	latest map[string]ProgressEvent
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		subs:   make(map[string]map[chan ProgressEvent]struct{}),
		latest: make(map[string]ProgressEvent),
	}
}

// Subscribe registers a subscriber for jobID. The latest known event, if
// any, is delivered first. The returned function unsubscribes.
func (eb *EventBroadcaster) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 1)

	eb.mu.Lock()
	if eb.subs[jobID] == nil {
		eb.subs[jobID] = make(map[chan ProgressEvent]struct{})
	}
	eb.subs[jobID][ch] = struct{}{}
	if ev, ok := eb.latest[jobID]; ok {
		ch <- ev
	}
	n := len(eb.subs[jobID])
	eb.mu.Unlock()

	slog.Debug("Stream subscribed", "job_id", jobID, "subscribers", n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			delete(eb.subs[jobID], ch)
			if len(eb.subs[jobID]) == 0 {
				delete(eb.subs, jobID)
				if ev, ok := eb.latest[jobID]; ok && ev.final() {
					delete(eb.latest, jobID)
				}
			}
			slog.Debug("Stream unsubscribed", "job_id", jobID)
		})
	}
}

// Broadcast records event as the latest for its job and offers it to every
// subscriber. A final event is kept only while someone is still subscribed;
// later streams read the final state from the job itself.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if event.final() && len(eb.subs[event.JobID]) == 0 {
		delete(eb.latest, event.JobID)
		return
	}
	eb.latest[event.JobID] = event
	for ch := range eb.subs[event.JobID] {
		// Drop the unread event, if any, then deliver. Only Broadcast sends
		// and it holds the lock, so the send cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- event
	}
}

// Subscribers returns the number of open streams for jobID.
func (eb *EventBroadcaster) Subscribers(jobID string) int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.subs[jobID])
}

// handleJobStream handles GET /api/v1/jobs/:id/stream. Each event carries
// the generation as its SSE id and is typed "progress" or, for the last
// event of a job, "done".
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.jobManager.broadcaster.Subscribe(jobID)
	defer unsubscribe()

	// The job snapshot may be newer than anything broadcast so far.
	current := progressFromJob(job)
	if err := writeSSEEvent(w, current); err != nil {
		slog.Error("Failed to write stream event", "job_id", jobID, "error", err)
		return
	}
	flusher.Flush()
	if current.final() {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Stream client disconnected", "job_id", jobID)
			return

		case event := <-events:
			if event.Generation < current.Generation && !event.final() {
				continue
			}
			current = event
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write stream event", "job_id", jobID, "error", err)
				return
			}
			flusher.Flush()
			if event.final() {
				return
			}

		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	kind := "progress"
	if event.final() {
		kind = "done"
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Generation, kind, data)
	return err
}
