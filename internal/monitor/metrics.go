package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	verrors "github.com/turtacn/Vigil/pkg/errors"
	"github.com/turtacn/Vigil/pkg/logger"
)

// Metrics holds the worker's Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	// RunsTotal counts finished runs, partitioned by final state.
	RunsTotal *prometheus.CounterVec

	// RunDuration tracks how long a run took from start to its terminal state.
	RunDuration prometheus.Histogram

	// TerminationRequests counts delivered termination signals. first is "true"
	// only for the delivery that changed the flag.
	TerminationRequests *prometheus.CounterVec

	// Transitions counts lifecycle state changes.
	Transitions *prometheus.CounterVec
}

// New creates and registers the worker metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_worker_runs_total",
			Help: "Total number of worker runs by outcome",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vigil_worker_run_duration_seconds",
			Help:    "Time from worker start to its terminal state",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
		}),
		TerminationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_termination_requests_total",
			Help: "Termination signals delivered to the worker",
		}, []string{"signal", "first"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_state_transitions_total",
			Help: "Worker lifecycle state transitions",
		}, []string{"from", "to"}),
	}
	m.Registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.TerminationRequests,
		m.Transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server serves /metrics until Shutdown is called.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts an HTTP server exposing /metrics on addr (e.g., ":9090").
func (m *Metrics) Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeMetricsServe, "MetricsListen", "cannot bind metrics address "+addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}

	go func() {
		logger.Log.Info("Metrics server starting", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Metrics server failed", "err", err)
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Personal.AI order the ending
