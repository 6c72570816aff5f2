package consts

import "time"

// WorkerMode is the free-form operating mode tag read from WORKER_MODE.
type WorkerMode string

// DefaultMode is used when WORKER_MODE is unset.
const DefaultMode WorkerMode = "default"

// WorkerState defines the lifecycle state of the worker process.
type WorkerState string

const (
	StateStarting   WorkerState = "STARTING"
	StateRunning    WorkerState = "RUNNING"
	StateCompleted  WorkerState = "COMPLETED"  // Wait elapsed, no signal
	StateTerminated WorkerState = "TERMINATED" // Signal arrived during the wait
	StateCrashed    WorkerState = "CRASHED"    // Crash toggle enabled
)

// Lifecycle events fired on the worker state machine.
const (
	EventReady     = "ready"
	EventComplete  = "complete"
	EventTerminate = "terminate"
	EventCrash     = "crash"
)

// Environment variables and defaults.
const (
	EnvPrefix       = "WORKER"
	DefaultDuration = 5 * time.Second
	DefaultStopWait = 10 * time.Second
	DefaultLogLevel = "info"
	DefaultStopSig  = "SIGTERM"
)

// Console notices. These lines are the observable contract of the worker.
const (
	NoticeStarted  = "Worker started with mode: %s"
	NoticeShutdown = "Received SIGTERM, exiting..."
	NoticeFinished = "Worker finished."
	NoticeCrashed  = "Worker crashed!"
)

// Personal.AI order the ending
