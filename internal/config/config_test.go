package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/turtacn/Vigil/pkg/consts"
	verrors "github.com/turtacn/Vigil/pkg/errors"
)

// unsetEnv removes key for the duration of the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadWorker_Defaults(t *testing.T) {
	unsetEnv(t, "WORKER_MODE")

	cfg, err := LoadWorker("", nil, nil)
	if err != nil {
		t.Fatalf("LoadWorker failed: %v", err)
	}
	if cfg.Mode != "default" {
		t.Errorf("Expected mode default, got %q", cfg.Mode)
	}
	if cfg.Duration != consts.DefaultDuration {
		t.Errorf("Expected duration %v, got %v", consts.DefaultDuration, cfg.Duration)
	}
	if cfg.CrashOnExit {
		t.Error("CrashOnExit should default to false")
	}
	if !cfg.HandleSignals {
		t.Error("HandleSignals should default to true")
	}
}

func TestLoadWorker_Env(t *testing.T) {
	t.Setenv("WORKER_MODE", "batch")
	t.Setenv("WORKER_DURATION", "15s")
	t.Setenv("WORKER_CRASH_ON_EXIT", "true")
	t.Setenv("WORKER_HANDLE_SIGNALS", "false")

	cfg, err := LoadWorker("", nil, nil)
	if err != nil {
		t.Fatalf("LoadWorker failed: %v", err)
	}
	if cfg.Mode != "batch" {
		t.Errorf("Expected mode batch, got %q", cfg.Mode)
	}
	if cfg.Duration != 15*time.Second {
		t.Errorf("Expected 15s, got %v", cfg.Duration)
	}
	if !cfg.CrashOnExit || cfg.HandleSignals {
		t.Errorf("Unexpected toggles: %+v", cfg)
	}
}

func TestLoadWorker_EmptyModeIsKept(t *testing.T) {
	t.Setenv("WORKER_MODE", "")

	cfg, err := LoadWorker("", nil, nil)
	if err != nil {
		t.Fatalf("LoadWorker failed: %v", err)
	}
	if cfg.Mode != "" {
		t.Errorf("Expected empty mode, got %q", cfg.Mode)
	}
}

func TestLoadWorker_FilesAndFlags(t *testing.T) {
	unsetEnv(t, "WORKER_MODE")
	dir := t.TempDir()
	file := filepath.Join(dir, "worker.yaml")
	err := os.WriteFile(file, []byte("mode: from-file\nduration: 20s\nlog_level: debug\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Duration("duration", consts.DefaultDuration, "")
	if err := fs.Parse([]string{"--duration=250ms"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWorker(file, fs, FlagBindings{KeyDuration: "duration", KeyCrashOnExit: "missing"})
	if err != nil {
		t.Fatalf("LoadWorker failed: %v", err)
	}
	if cfg.Mode != "from-file" {
		t.Errorf("Expected mode from file, got %q", cfg.Mode)
	}
	if cfg.Duration != 250*time.Millisecond {
		t.Errorf("Expected flag to override file, got %v", cfg.Duration)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug, got %q", cfg.LogLevel)
	}
}

func TestLoadWorker_Invalid(t *testing.T) {
	t.Setenv("WORKER_DURATION", "0s")
	_, err := LoadWorker("", nil, nil)
	if !verrors.Is(err, verrors.ErrCodeConfigInvalid) {
		t.Errorf("Expected config error for zero duration, got %v", err)
	}

	t.Setenv("WORKER_DURATION", "1s")
	t.Setenv("WORKER_LOG_LEVEL", "chatty")
	_, err = LoadWorker("", nil, nil)
	if !verrors.Is(err, verrors.ErrCodeConfigInvalid) {
		t.Errorf("Expected config error for log level, got %v", err)
	}

	_, err = LoadWorker(filepath.Join(t.TempDir(), "missing.yaml"), nil, nil)
	if !verrors.Is(err, verrors.ErrCodeConfigInvalid) {
		t.Errorf("Expected config error for missing file, got %v", err)
	}
}

const programs = `
programs:
  worker:
    command: ["python3", "worker.py"]
    env:
      WORKER_MODE: batch
    umask: "022"
  web:
    command: ["node", "server.js"]
    stopsignal: SIGINT
    exitcodes: [0, 2]
`

func TestParseProgram(t *testing.T) {
	pc, err := ParseProgram([]byte(programs), "worker")
	if err != nil {
		t.Fatalf("ParseProgram failed: %v", err)
	}
	if pc.Name != "worker" || pc.Env["WORKER_MODE"] != "batch" {
		t.Errorf("Unexpected program: %+v", pc)
	}
	if pc.StopSignal != "SIGTERM" {
		t.Errorf("Expected default stop signal, got %q", pc.StopSignal)
	}
	if len(pc.ExitCodes) != 1 || pc.ExitCodes[0] != 0 {
		t.Errorf("Expected default exit codes [0], got %v", pc.ExitCodes)
	}

	web, err := ParseProgram([]byte(programs), "web")
	if err != nil {
		t.Fatalf("ParseProgram failed: %v", err)
	}
	if web.StopSignal != "SIGINT" || len(web.ExitCodes) != 2 {
		t.Errorf("Unexpected program: %+v", web)
	}
}

func TestParseProgram_Errors(t *testing.T) {
	if _, err := ParseProgram([]byte(programs), ""); err == nil {
		t.Error("Expected error when several programs are defined and none is picked")
	}
	if _, err := ParseProgram([]byte(programs), "debug"); err == nil {
		t.Error("Expected error for unknown program")
	}
	if _, err := ParseProgram([]byte("programs: {}"), ""); err == nil {
		t.Error("Expected error for empty program list")
	}
	if _, err := ParseProgram([]byte("programs:\n  x:\n    umask: \"9z\"\n    command: [ls]\n"), ""); err == nil {
		t.Error("Expected error for non-octal umask")
	}
	if _, err := ParseProgram([]byte("programs:\n  x:\n    env: [1, 2]\n"), ""); err == nil {
		t.Error("Expected error for invalid program")
	}
}

func TestLoadProgram_SingleProgram(t *testing.T) {
	file := filepath.Join(t.TempDir(), "programs.yaml")
	if err := os.WriteFile(file, []byte("programs:\n  only:\n    command: [ls]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pc, err := LoadProgram(file, "")
	if err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}
	if pc.Name != "only" {
		t.Errorf("Expected only, got %q", pc.Name)
	}
}

func TestParseSupervisor_LogLevel(t *testing.T) {
	sc, err := ParseSupervisor([]byte("log_level: debug\nprograms:\n  x:\n    command: [ls]\n"))
	if err != nil {
		t.Fatalf("ParseSupervisor failed: %v", err)
	}
	if sc.LogLevel != "debug" {
		t.Errorf("Expected debug, got %q", sc.LogLevel)
	}

	_, err = ParseSupervisor([]byte("log_level: chatty\nprograms:\n  x:\n    command: [ls]\n"))
	if !verrors.Is(err, verrors.ErrCodeConfigInvalid) {
		t.Errorf("Expected config error for unknown log level, got %v", err)
	}
}

func TestSelectProgram(t *testing.T) {
	sc, err := ParseSupervisor([]byte(programs))
	if err != nil {
		t.Fatalf("ParseSupervisor failed: %v", err)
	}
	pc, err := SelectProgram(sc, "web")
	if err != nil {
		t.Fatalf("SelectProgram failed: %v", err)
	}
	if pc.Name != "web" || pc.Command[0] != "node" {
		t.Errorf("Unexpected program: %+v", pc)
	}
	// Defaults are filled on the returned copy only.
	if sc.Programs["worker"].StopSignal != "" {
		t.Errorf("Selecting must not modify the parsed file")
	}
}
