package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	verrors "github.com/turtacn/Vigil/pkg/errors"
	"github.com/turtacn/Vigil/pkg/logger"
	"github.com/turtacn/Vigil/pkg/termination"
)

// DefaultSignals are the polite shutdown requests the worker honours.
var DefaultSignals = []os.Signal{syscall.SIGTERM, os.Interrupt}

// Observer is told about every delivered signal. first is true only for the
// delivery that moved the flag to Requested.
type Observer func(sig os.Signal, first bool)

// Listener turns OS signal deliveries into a termination request.
// It never exits the process itself; the work loop decides what to do.
type Listener struct {
	flag     *termination.Flag
	sigs     []os.Signal
	source   <-chan os.Signal
	notifyCh chan os.Signal
	observer Observer
	ignore   bool

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Option configures a Listener.
type Option func(*Listener)

// WithSignals overrides DefaultSignals.
func WithSignals(sigs ...os.Signal) Option {
	return func(l *Listener) { l.sigs = sigs }
}

// WithSource reads deliveries from ch instead of subscribing to the OS.
func WithSource(ch <-chan os.Signal) Option {
	return func(l *Listener) { l.source = ch }
}

// WithObserver registers fn for every delivery.
func WithObserver(fn Observer) Option {
	return func(l *Listener) { l.observer = fn }
}

// WithIgnoreOnStop makes Stop ignore the signals, instead of restoring their
// default action, once termination has been requested. Use it when the
// process exits right after Stop, so a repeated delivery cannot kill it
// with a signal status.
func WithIgnoreOnStop() Option {
	return func(l *Listener) { l.ignore = true }
}

// New creates a Listener that writes to flag.
func New(flag *termination.Flag, opts ...Option) *Listener {
	l := &Listener{
		flag: flag,
		sigs: DefaultSignals,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start subscribes to the configured signals and begins forwarding them.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return verrors.New(verrors.ErrCodeSignalSetup, "SignalListen", "listener already started", nil)
	}
	if len(l.sigs) == 0 && l.source == nil {
		return verrors.New(verrors.ErrCodeSignalSetup, "SignalListen", "no signals to subscribe to", nil)
	}
	l.started = true

	if l.source == nil {
		// Buffered so a delivery during the handoff is not dropped.
		l.notifyCh = make(chan os.Signal, 2)
		signal.Notify(l.notifyCh, l.sigs...)
		l.source = l.notifyCh
	}

	go l.loop()
	logger.Log.Debug("Signals: Listening", "signals", l.sigs)
	return nil
}

func (l *Listener) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case sig, ok := <-l.source:
			if !ok {
				return
			}
			l.deliver(sig)
		}
	}
}

func (l *Listener) deliver(sig os.Signal) {
	first := l.flag.Request(sig.String())
	if first {
		logger.Log.Info("Signal: Termination requested", "signal", sig.String())
	} else {
		logger.Log.Warn("Signal: Termination already requested, ignoring", "signal", sig.String())
	}
	if l.observer != nil {
		l.observer(sig, first)
	}
}

// Stop unsubscribes from the OS and waits for the forwarding goroutine to exit.
// With WithIgnoreOnStop and a requested flag, the signals stay ignored for
// the rest of the process.
// It is safe to call more than once, and before Start.
func (l *Listener) Stop() {
	l.once.Do(func() {
		l.mu.Lock()
		started := l.started
		if l.notifyCh != nil {
			if l.ignore && l.flag.Requested() {
				// Ignore also detaches notifyCh from these signals.
				signal.Ignore(l.sigs...)
			}
			signal.Stop(l.notifyCh)
		}
		l.mu.Unlock()

		close(l.stop)
		if started {
			<-l.done
		}
	})
}

// Personal.AI order the ending
