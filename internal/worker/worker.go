package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/turtacn/Vigil/internal/monitor"
	"github.com/turtacn/Vigil/pkg/consts"
	verrors "github.com/turtacn/Vigil/pkg/errors"
	"github.com/turtacn/Vigil/pkg/exitcodes"
	"github.com/turtacn/Vigil/pkg/fsm"
	"github.com/turtacn/Vigil/pkg/logger"
	"github.com/turtacn/Vigil/pkg/protocol"
	"github.com/turtacn/Vigil/pkg/termination"
)

// Outcome describes how a run ended.
type Outcome struct {
	RunID    string
	Mode     string
	State    consts.WorkerState
	ExitCode int
	Elapsed  time.Duration
	// Cause is what requested termination, empty unless State is TERMINATED.
	Cause    string
}

// Worker performs one bounded unit of work and stops early when its
// termination flag is requested.
type Worker struct {
	cfg     protocol.WorkerConfig
	flag    *termination.Flag
	fsm     *fsm.StateMachine
	metrics *monitor.Metrics
	stdout  io.Writer
	stderr  io.Writer
	runID   string
	log     logger.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithOutput sets where notices are written. Defaults are os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(w *Worker) {
		w.stdout = stdout
		w.stderr = stderr
	}
}

// WithMetrics records transitions and run outcomes on m.
func WithMetrics(m *monitor.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New creates a Worker in the STARTING state. flag is shared with whoever
// delivers termination requests, usually a signals.Listener.
func New(cfg protocol.WorkerConfig, flag *termination.Flag, opts ...Option) *Worker {
	w := &Worker{
		cfg:    cfg,
		flag:   flag,
		fsm:    fsm.New(fsm.State(consts.StateStarting)),
		stdout: os.Stdout,
		stderr: os.Stderr,
		runID:  ulid.Make().String(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logger.Log.With("run_id", w.runID, "mode", cfg.Mode)
	w.setupFSM()
	return w
}

func (w *Worker) setupFSM() {
	w.fsm.AddTransition(fsm.State(consts.StateStarting), fsm.State(consts.StateRunning), consts.EventReady, nil)
	w.fsm.AddTransition(fsm.State(consts.StateRunning), fsm.State(consts.StateCompleted), consts.EventComplete, nil)
	w.fsm.AddTransition(fsm.State(consts.StateRunning), fsm.State(consts.StateTerminated), consts.EventTerminate, nil)
	w.fsm.AddTransition(fsm.State(consts.StateRunning), fsm.State(consts.StateCrashed), consts.EventCrash, nil)
	w.fsm.MarkTerminal(
		fsm.State(consts.StateCompleted),
		fsm.State(consts.StateTerminated),
		fsm.State(consts.StateCrashed),
	)

	w.fsm.Observe(func(from, to fsm.State, event fsm.Event) {
		w.log.Debug("Worker: State transition", "from", from, "to", to, "event", event)
		if w.metrics != nil {
			w.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
		}
	})
}

// State returns the current lifecycle state.
func (w *Worker) State() consts.WorkerState {
	return consts.WorkerState(w.fsm.Current())
}

// RunID identifies this worker run in logs.
func (w *Worker) RunID() string {
	return w.runID
}

// Run emits the startup notice, waits for the configured duration and ends
// in COMPLETED, TERMINATED or CRASHED. Cancelling ctx counts as a
// termination request. A Worker runs once; a second call fails.
//
// With the crash toggle on, Run returns both the Outcome and an
// ErrCodeSimulatedCrash error.
func (w *Worker) Run(ctx context.Context) (*Outcome, error) {
	start := time.Now()

	if w.fsm.IsTerminal() {
		return nil, verrors.New(verrors.ErrCodeInvalidState, "WorkerRun", "worker already ran", nil)
	}
	if err := w.fsm.Fire(consts.EventReady); err != nil {
		return nil, verrors.New(verrors.ErrCodeInvalidState, "WorkerRun", "worker not startable from "+string(w.State()), err)
	}
	w.notice(w.stdout, consts.NoticeStarted, w.cfg.Mode)
	w.log.Info("Worker: Running", "duration", w.cfg.Duration)

	timer := time.NewTimer(w.cfg.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-w.flag.Done():
	case <-ctx.Done():
		w.flag.Request("context: " + ctx.Err().Error())
	}

	// The flag is the single point of decision: a request that lands after
	// the timer but before this check still wins.
	out := &Outcome{RunID: w.runID, Mode: w.cfg.Mode}
	var runErr error

	switch {
	case w.flag.Requested():
		w.notice(w.stdout, consts.NoticeShutdown)
		w.fire(consts.EventTerminate)
		out.ExitCode = exitcodes.Terminated
		out.Cause = w.flag.Cause()
	case w.cfg.CrashOnExit:
		w.notice(w.stderr, consts.NoticeCrashed)
		w.fire(consts.EventCrash)
		out.ExitCode = exitcodes.Crash
		runErr = verrors.New(verrors.ErrCodeSimulatedCrash, "WorkerRun", "crash on exit enabled", nil)
	default:
		w.notice(w.stdout, consts.NoticeFinished)
		w.fire(consts.EventComplete)
		out.ExitCode = exitcodes.Success
	}

	out.State = w.State()
	out.Elapsed = time.Since(start)

	if w.metrics != nil {
		w.metrics.ObserveRun(string(out.State), out.Elapsed)
	}
	w.log.Info("Worker: Stopped", "state", out.State, "exit_code", out.ExitCode,
		"elapsed", out.Elapsed, "cause", out.Cause)
	return out, runErr
}

func (w *Worker) fire(event string) {
	// Only RUNNING -> terminal transitions reach here, all registered above.
	if err := w.fsm.Fire(fsm.Event(event)); err != nil {
		w.log.Error("Worker: Transition failed", "event", event, "err", err)
	}
}

func (w *Worker) notice(dst io.Writer, format string, args ...any) {
	if _, err := fmt.Fprintf(dst, format+"\n", args...); err != nil {
		w.log.Warn("Worker: Notice not written", "err", err)
	}
}

// Personal.AI order the ending
