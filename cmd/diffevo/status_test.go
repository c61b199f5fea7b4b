package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/diffevo/internal/server"
)

func TestStatusCommands(t *testing.T) {
	s := server.NewServer("localhost:0", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	var out bytes.Buffer
	if err := listJobs(&out, srv.URL); err != nil {
		t.Fatalf("listJobs failed: %v", err)
	}
	if !strings.Contains(out.String(), "No jobs found") {
		t.Errorf("Unexpected output for empty server:\n%s", out.String())
	}

	resp, err := srv.Client().Post(srv.URL+"/api/v1/jobs", "application/json",
		strings.NewReader(`{"problem": "singlenormal", "generations": 5, "populationSize": 6, "seed": 1}`))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	var created server.Job
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode job: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		out.Reset()
		if err := getJobStatus(&out, srv.URL, created.ID); err != nil {
			t.Fatalf("getJobStatus failed: %v", err)
		}
		if strings.Contains(out.String(), "State: completed") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Job did not complete:\n%s", out.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
	for _, want := range []string{"Problem: singlenormal", "Samples: 30", "theta = "} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Status missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := listJobs(&out, srv.URL); err != nil {
		t.Fatalf("listJobs failed: %v", err)
	}
	if !strings.Contains(out.String(), "Found 1 job(s)") || !strings.Contains(out.String(), "Generation: 5/5") {
		t.Errorf("Unexpected job list:\n%s", out.String())
	}

	if err := getJobStatus(&out, srv.URL, "missing"); err == nil {
		t.Error("Expected error for missing job")
	}
}
