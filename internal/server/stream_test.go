package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventBroadcaster_LatestWins(t *testing.T) {
	eb := NewEventBroadcaster()
	events, unsubscribe := eb.Subscribe("job1")
	defer unsubscribe()

	for g := 1; g <= 3; g++ {
		eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Generation: g})
	}
	eb.Broadcast(ProgressEvent{JobID: "other", State: StateRunning, Generation: 99})

	select {
	case ev := <-events:
		if ev.Generation != 3 {
			t.Errorf("Expected latest generation 3, got %d", ev.Generation)
		}
	default:
		t.Fatal("Expected a pending event")
	}

	select {
	case ev := <-events:
		t.Errorf("Unexpected extra event %+v", ev)
	default:
	}
}

func TestEventBroadcaster_ReplaysLatest(t *testing.T) {
	eb := NewEventBroadcaster()
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Generation: 7})

	events, unsubscribe := eb.Subscribe("job1")
	if eb.Subscribers("job1") != 1 {
		t.Errorf("Expected 1 subscriber, got %d", eb.Subscribers("job1"))
	}

	ev := <-events
	if ev.State != StateRunning || ev.Generation != 7 {
		t.Errorf("Unexpected replayed event %+v", ev)
	}

	unsubscribe()
	unsubscribe()
	if eb.Subscribers("job1") != 0 {
		t.Errorf("Expected 0 subscribers, got %d", eb.Subscribers("job1"))
	}

	// Broadcasting with no subscribers must not block.
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Generation: 8})
}

func latestCount(eb *EventBroadcaster) int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.latest)
}

func TestEventBroadcaster_ForgetsFinishedJobs(t *testing.T) {
	eb := NewEventBroadcaster()

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Generation: 1})
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateCompleted, Generation: 2})
	if n := latestCount(eb); n != 0 {
		t.Errorf("Expected no retained events for an unwatched finished job, got %d", n)
	}

	events, unsubscribe := eb.Subscribe("job2")
	eb.Broadcast(ProgressEvent{JobID: "job2", State: StateCancelled, Generation: 3})
	if ev := <-events; ev.State != StateCancelled {
		t.Errorf("Expected cancelled event, got %+v", ev)
	}
	if n := latestCount(eb); n != 1 {
		t.Errorf("Expected the final event retained while subscribed, got %d", n)
	}

	unsubscribe()
	if n := latestCount(eb); n != 0 {
		t.Errorf("Expected no retained events after the last subscriber left, got %d", n)
	}
}

func TestProgressFromJob(t *testing.T) {
	job := &Job{
		ID:         "job1",
		State:      StateRunning,
		Config:     JobConfig{Generations: 10, PopulationSize: 8},
		Generation: 4,
		Accepted:   2,
		Samples:    32,
	}

	ev := progressFromJob(job)
	if ev.AcceptanceRate != 0.25 {
		t.Errorf("Expected acceptance rate 0.25, got %f", ev.AcceptanceRate)
	}
	if ev.Generations != 10 || ev.Samples != 32 || ev.final() {
		t.Errorf("Unexpected event %+v", ev)
	}

	job.State = StateFailed
	if !progressFromJob(job).final() {
		t.Error("Failed job should produce a final event")
	}
}

func TestHandleJobStream(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{Problem: "cubic", Generations: 3, PopulationSize: 4})
	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateRunning })

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	go func() {
		for s.jobManager.broadcaster.Subscribers(job.ID) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		s.jobManager.broadcaster.Broadcast(ProgressEvent{JobID: job.ID, State: StateRunning, Generation: 2, Generations: 3})
		s.jobManager.broadcaster.Broadcast(ProgressEvent{JobID: job.ID, State: StateCompleted, Generation: 3, Generations: 3})
	}()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	// The handler returns after the done event, closing the body.
	var buf strings.Builder
	b := make([]byte, 512)
	for {
		n, err := resp.Body.Read(b)
		buf.Write(b[:n])
		if err != nil {
			break
		}
	}

	body := buf.String()
	if !strings.HasPrefix(body, "id: 0\nevent: progress\n") {
		t.Errorf("Expected the current state first, got:\n%s", body)
	}
	if !strings.Contains(body, "id: 3\nevent: done\n") {
		t.Errorf("Expected a done event, got:\n%s", body)
	}

	resp404, err := http.Get(srv.URL + "/api/v1/jobs/missing/stream")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp404.Body.Close()
	if resp404.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp404.StatusCode)
	}
}

func TestHandleJobStream_PendingJobCancelled(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{Problem: "cubic", Generations: 3, PopulationSize: 4})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	go func() {
		for s.jobManager.broadcaster.Subscribers(job.ID) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		if err := s.jobManager.CancelJob(job.ID); err != nil {
			t.Errorf("CancelJob failed: %v", err)
		}
	}()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Stream did not end after cancellation: %v", err)
	}
	if !strings.Contains(string(body), "event: done\n") || !strings.Contains(string(body), `"state":"cancelled"`) {
		t.Errorf("Expected a cancelled done event, got:\n%s", body)
	}
}
