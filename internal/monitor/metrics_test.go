package monitor

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsValues(t *testing.T) {
	m := New()
	m.ObserveRun("COMPLETED", 2*time.Second)
	m.ObserveRun("COMPLETED", time.Second)
	m.ObserveRun("TERMINATED", 500*time.Millisecond)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("COMPLETED")); got != 2 {
		t.Errorf("Expected 2 completed runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("TERMINATED")); got != 1 {
		t.Errorf("Expected 1 terminated run, got %v", got)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()
	a.Transitions.WithLabelValues("STARTING", "RUNNING").Inc()

	if got := testutil.ToFloat64(b.Transitions.WithLabelValues("STARTING", "RUNNING")); got != 0 {
		t.Errorf("Expected isolated counters, got %v", got)
	}
}

func TestMetricsServer(t *testing.T) {
	m := New()
	m.TerminationRequests.WithLabelValues("terminated", "true").Inc()

	srv, err := m.Serve("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "vigil_termination_requests_total") {
		t.Errorf("Expected termination counter in output")
	}
}

func TestMetricsServer_BadAddr(t *testing.T) {
	m := New()
	if _, err := m.Serve("256.0.0.1:bad"); err == nil {
		t.Error("Expected error for invalid address")
	}
}
