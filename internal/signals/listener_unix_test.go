//go:build !windows

package signals

import (
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/turtacn/Vigil/pkg/termination"
)

func TestListener_RealSignal(t *testing.T) {
	flag := termination.New()
	l := New(flag, WithSignals(syscall.SIGUSR1))
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	waitDone(t, flag)
}

func TestListener_IgnoreOnStop(t *testing.T) {
	flag := termination.New()
	l := New(flag, WithSignals(syscall.SIGUSR2), WithIgnoreOnStop())
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR2); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	waitDone(t, flag)
	l.Stop()

	if !signal.Ignored(syscall.SIGUSR2) {
		t.Fatal("SIGUSR2 should be ignored after Stop")
	}

	// The default action for SIGUSR2 terminates the process; surviving a
	// late delivery shows it is ignored.
	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR2); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
}

func TestListener_IgnoreOnStopWithoutRequest(t *testing.T) {
	l := New(termination.New(), WithSignals(syscall.SIGWINCH), WithIgnoreOnStop())
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.Stop()

	if signal.Ignored(syscall.SIGWINCH) {
		t.Error("Signals must be restored when no termination was requested")
	}
}
