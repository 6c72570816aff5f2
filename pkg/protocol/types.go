package protocol

import "time"

// WorkerConfig is the resolved configuration of a single worker run.
// Keys map to WORKER_* environment variables (mode -> WORKER_MODE).
type WorkerConfig struct {
	Mode          string        `mapstructure:"mode" yaml:"mode"`
	Duration      time.Duration `mapstructure:"duration" yaml:"duration"`             // Length of the simulated unit of work
	CrashOnExit   bool          `mapstructure:"crash_on_exit" yaml:"crash_on_exit"`   // Exit 1 instead of 0 after the wait
	HandleSignals bool          `mapstructure:"handle_signals" yaml:"handle_signals"` // Register the termination handler
	LogLevel      string        `mapstructure:"log_level" yaml:"log_level"`
	MetricsAddr   string        `mapstructure:"metrics_addr" yaml:"metrics_addr"` // Empty disables /metrics
}

// SupervisorConfig is the root of a supervisor program file.
type SupervisorConfig struct {
	Programs map[string]ProgramConfig `yaml:"programs"`
	LogLevel string                   `yaml:"log_level"`
}

// ProgramConfig describes one supervised program.
type ProgramConfig struct {
	Name        string            `yaml:"-"`
	Command     []string          `yaml:"command"`
	WorkingDir  string            `yaml:"workingdir"`
	Env         map[string]string `yaml:"env"`
	Umask       string            `yaml:"umask"`  // Octal, e.g. "022"
	Stdout      string            `yaml:"stdout"` // Appended to; empty inherits ours
	Stderr      string            `yaml:"stderr"`
	StopSignal  string            `yaml:"stopsignal"`
	StopTimeout string            `yaml:"stoptimeout"`
	ExitCodes   []int             `yaml:"exitcodes"` // Expected codes, default [0]
}

// Personal.AI order the ending
