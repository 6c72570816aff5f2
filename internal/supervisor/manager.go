package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/turtacn/Vigil/pkg/consts"
	verrors "github.com/turtacn/Vigil/pkg/errors"
	"github.com/turtacn/Vigil/pkg/exitcodes"
	"github.com/turtacn/Vigil/pkg/logger"
	"github.com/turtacn/Vigil/pkg/protocol"
)

// umaskMu serializes the process-wide umask swap around fork.
var umaskMu sync.Mutex

// ExitStatus is how a supervised program ended.
type ExitStatus struct {
	Code     int    // -1 when killed by a signal
	Signal   string // Empty unless killed by a signal
	// Expected is true when Code is listed in the program's exitcodes.
	Expected bool
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("exited with code %d, signal %s", s.Code, s.Signal)
	}
	return fmt.Sprintf("exited with code %d (%s)", s.Code, exitcodes.Name(s.Code))
}

// ProcessManager handles the lifecycle of one supervised program.
// It manages starting, stopping, and waiting for the process.
type ProcessManager struct {
	program protocol.ProgramConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	files   []*os.File
	exited  chan struct{}
	status  ExitStatus
	waitErr error
}

// New creates a new ProcessManager for program.
func New(program protocol.ProgramConfig) *ProcessManager {
	return &ProcessManager{program: program}
}

// Start launches the program with its environment merged over ours, its
// working directory, umask and output files. Output files are opened in
// append mode; unset ones inherit our stdout and stderr.
func (pm *ProcessManager) Start() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	p := pm.program
	if pm.cmd != nil {
		return verrors.New(verrors.ErrCodeProcessStartFail, "ProcessStart", "program "+p.Name+" already started", nil)
	}
	if len(p.Command) == 0 {
		return verrors.New(verrors.ErrCodeProcessStartFail, "ProcessStart", "program "+p.Name+" has no command", nil)
	}

	cmd := exec.Command(p.Command[0], p.Command[1:]...)
	cmd.Dir = p.WorkingDir
	cmd.Env = append(os.Environ(), envList(p.Env)...)

	stdout, err := pm.output(p.Stdout, os.Stdout)
	if err != nil {
		pm.closeFiles()
		return verrors.New(verrors.ErrCodeProcessStartFail, "ProcessStart", "cannot open stdout "+p.Stdout, err)
	}
	stderr, err := pm.output(p.Stderr, os.Stderr)
	if err != nil {
		pm.closeFiles()
		return verrors.New(verrors.ErrCodeProcessStartFail, "ProcessStart", "cannot open stderr "+p.Stderr, err)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Log.Info("Supervisor: Forking process", "program", p.Name, "cmd", p.Command)
	if err := startWithUmask(cmd, p.Umask); err != nil {
		pm.closeFiles()
		return verrors.New(verrors.ErrCodeProcessStartFail, "ProcessStart", "cannot start "+p.Name, err)
	}

	pm.cmd = cmd
	pm.exited = make(chan struct{})
	logger.Log.Info("Supervisor: Started", "program", p.Name, "pid", cmd.Process.Pid)

	go pm.reap()
	return nil
}

func (pm *ProcessManager) output(path string, fallback *os.File) (io.Writer, error) {
	if path == "" {
		return fallback, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	pm.files = append(pm.files, f)
	return f, nil
}

func (pm *ProcessManager) closeFiles() {
	for _, f := range pm.files {
		f.Close()
	}
	pm.files = nil
}

func startWithUmask(cmd *exec.Cmd, umask string) error {
	if umask == "" {
		return cmd.Start()
	}
	mask, err := strconv.ParseUint(umask, 8, 32)
	if err != nil {
		return err
	}
	umaskMu.Lock()
	defer umaskMu.Unlock()
	old := syscall.Umask(int(mask))
	defer syscall.Umask(old)
	return cmd.Start()
}

func (pm *ProcessManager) reap() {
	err := pm.cmd.Wait()

	status := ExitStatus{Code: pm.cmd.ProcessState.ExitCode()}
	if ws, ok := pm.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = SignalName(ws.Signal())
	}
	for _, c := range pm.program.ExitCodes {
		if c == status.Code {
			status.Expected = true
		}
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		err = verrors.New(verrors.ErrCodeProcessWaitFail, "ProcessWait", "wait failed for "+pm.program.Name, err)
	} else {
		err = nil
	}

	pm.mu.Lock()
	pm.status = status
	pm.waitErr = err
	pm.closeFiles()
	pm.mu.Unlock()

	if status.Expected {
		logger.Log.Info("Supervisor: Process exited", "program", pm.program.Name, "code", status.Code, "signal", status.Signal)
	} else {
		logger.Log.Warn("Supervisor: Process exited unexpectedly", "program", pm.program.Name, "code", status.Code, "signal", status.Signal)
	}
	close(pm.exited)
}

// Pid returns the process ID, or 0 if not started.
func (pm *ProcessManager) Pid() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.cmd == nil || pm.cmd.Process == nil {
		return 0
	}
	return pm.cmd.Process.Pid
}

// Signal delivers sig to the running program.
func (pm *ProcessManager) Signal(sig os.Signal) error {
	pm.mu.Lock()
	cmd := pm.cmd
	pm.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return verrors.New(verrors.ErrCodeProcessSignal, "ProcessSignal", "cannot signal "+pm.program.Name, err)
	}
	return nil
}

// Stop sends the program's stop signal (SIGTERM by default) to initiate a graceful shutdown.
func (pm *ProcessManager) Stop() error {
	sig, err := ParseSignal(pm.program.StopSignal)
	if err != nil {
		return err
	}
	logger.Log.Info("Supervisor: Sending stop signal", "program", pm.program.Name, "signal", pm.program.StopSignal, "pid", pm.Pid())
	return pm.Signal(sig)
}

// Kill immediately terminates the program using SIGKILL.
// This is used when a graceful shutdown does not finish in time.
func (pm *ProcessManager) Kill() error {
	logger.Log.Warn("Supervisor: Sending SIGKILL", "program", pm.program.Name, "pid", pm.Pid())
	return pm.Signal(syscall.SIGKILL)
}

// Wait waits for the program to exit. A non-zero exit is reported through
// ExitStatus, not as an error.
func (pm *ProcessManager) Wait() (ExitStatus, error) {
	pm.mu.Lock()
	exited := pm.exited
	pm.mu.Unlock()

	if exited == nil {
		return ExitStatus{}, verrors.New(verrors.ErrCodeProcessWaitFail, "ProcessWait", "program "+pm.program.Name+" not started", nil)
	}
	<-exited

	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.status, pm.waitErr
}

// Shutdown stops the program and kills it if it has not exited within the
// program's stoptimeout (consts.DefaultStopWait when unset).
func (pm *ProcessManager) Shutdown() (ExitStatus, error) {
	pm.mu.Lock()
	exited := pm.exited
	pm.mu.Unlock()
	if exited == nil {
		return pm.Wait()
	}

	timeout := consts.DefaultStopWait
	if pm.program.StopTimeout != "" {
		if d, err := time.ParseDuration(pm.program.StopTimeout); err == nil {
			timeout = d
		}
	}

	if err := pm.Stop(); err != nil {
		logger.Log.Error("Supervisor: Stop failed", "program", pm.program.Name, "err", err)
	}

	select {
	case <-exited:
	case <-time.After(timeout):
		if err := pm.Kill(); err != nil {
			logger.Log.Error("Supervisor: Kill failed", "program", pm.program.Name, "err", err)
		}
	}
	return pm.Wait()
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(env))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

var signalNames = map[string]syscall.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGKILL": syscall.SIGKILL,
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
	"SIGTERM": syscall.SIGTERM,
}

// ParseSignal maps a name such as "SIGTERM" or "term" to a signal.
func ParseSignal(name string) (syscall.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	if sig, ok := signalNames[n]; ok {
		return sig, nil
	}
	return 0, verrors.New(verrors.ErrCodeConfigInvalid, "ParseSignal", "unknown signal "+name, nil)
}

// SignalName is the inverse of ParseSignal.
func SignalName(sig syscall.Signal) string {
	for name, s := range signalNames {
		if s == sig {
			return name
		}
	}
	return sig.String()
}

// Personal.AI order the ending
