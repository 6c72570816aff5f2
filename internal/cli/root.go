package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/turtacn/Vigil/internal/config"
	"github.com/turtacn/Vigil/internal/monitor"
	"github.com/turtacn/Vigil/internal/signals"
	"github.com/turtacn/Vigil/internal/supervisor"
	"github.com/turtacn/Vigil/internal/worker"
	"github.com/turtacn/Vigil/pkg/consts"
	"github.com/turtacn/Vigil/pkg/exitcodes"
	"github.com/turtacn/Vigil/pkg/logger"
	"github.com/turtacn/Vigil/pkg/protocol"
	"github.com/turtacn/Vigil/pkg/termination"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Worker flag names; bound to the config keys in workBindings.
const (
	flagDuration      = "duration"
	flagCrashOnExit   = "crash-on-exit"
	flagHandleSignals = "handle-signals"
	flagLogLevel      = "log-level"
	flagMetricsAddr   = "metrics-addr"
)

var workBindings = config.FlagBindings{
	config.KeyDuration:      flagDuration,
	config.KeyCrashOnExit:   flagCrashOnExit,
	config.KeyHandleSignals: flagHandleSignals,
	config.KeyLogLevel:      flagLogLevel,
	config.KeyMetricsAddr:   flagMetricsAddr,
}

// exitCoder carries a process exit code out of a cobra command.
type exitCoder struct {
	code int
}

func newRootCmd(code *exitCoder) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vigil",
		Short:         "Vigil: a worker that can be told to stop cleanly",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newWorkCmd(code))
	rootCmd.AddCommand(newSuperviseCmd(code))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newWorkCmd(code *exitCoder) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run one unit of work, stopping early on SIGTERM",
		Long: "Reads WORKER_MODE (default \"default\"), prints a startup notice, waits for the\n" +
			"configured duration and prints a completion notice. SIGTERM or SIGINT during\n" +
			"the wait prints a shutdown notice instead. Both paths exit 0.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code.code = runWork(cmd, cfgFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "optional worker config file (yaml)")
	cmd.Flags().Duration(flagDuration, consts.DefaultDuration, "length of the unit of work")
	cmd.Flags().Bool(flagCrashOnExit, false, "exit 1 with a crash notice instead of completing")
	cmd.Flags().Bool(flagHandleSignals, true, "install the termination handler")
	cmd.Flags().String(flagLogLevel, consts.DefaultLogLevel, "log level: debug, info, warn, error")
	cmd.Flags().String(flagMetricsAddr, "", "serve Prometheus metrics on this address")
	return cmd
}

func runWork(cmd *cobra.Command, cfgFile string) int {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	// 1. Load Config
	cfg, err := config.LoadWorker(cfgFile, cmd.Flags(), workBindings)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return exitcodes.InvalidConfig
	}

	// 2. Init Logger & Metrics
	logger.InitLogger(cfg.LogLevel, stderr)
	m := monitor.New()
	if cfg.MetricsAddr != "" {
		srv, err := m.Serve(cfg.MetricsAddr)
		if err != nil {
			logger.Log.Error("Metrics disabled", "err", err)
		} else {
			defer shutdownMetrics(srv)
		}
	}

	// 3. Termination handler
	flag := termination.New()
	if cfg.HandleSignals {
		l := signals.New(flag, signals.WithIgnoreOnStop(), signals.WithObserver(func(sig os.Signal, first bool) {
			m.TerminationRequests.WithLabelValues(sig.String(), fmt.Sprint(first)).Inc()
		}))
		if err := l.Start(); err != nil {
			logger.Log.Error("Signal handler setup failed", "err", err)
			return exitcodes.Crash
		}
		defer l.Stop()
	}

	// 4. Work
	w := worker.New(*cfg, flag, worker.WithOutput(stdout, stderr), worker.WithMetrics(m))
	out, err := w.Run(cmd.Context())
	if out == nil {
		logger.Log.Error("Worker fatal error", "err", err)
		return exitcodes.Crash
	}
	return out.ExitCode
}

func shutdownMetrics(srv *monitor.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Warn("Metrics server shutdown failed", "err", err)
	}
}

func newSuperviseCmd(code *exitCoder) *cobra.Command {
	var file, name, level string
	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Run one program from a programs file and forward SIGTERM to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code.code = runSupervise(cmd.OutOrStdout(), cmd.ErrOrStderr(), file, name, level)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "programs.yaml", "programs file path")
	cmd.Flags().StringVarP(&name, "program", "p", "", "program to run (may be omitted if the file has one)")
	cmd.Flags().StringVar(&level, flagLogLevel, "", "log level: debug, info, warn, error (default: the file's log_level, then info)")
	return cmd
}

// runSupervise runs one program from file. An empty level falls back to the
// file's log_level, then to info.
func runSupervise(stdout, stderr io.Writer, file, name, level string) int {
	sc, err := config.LoadSupervisor(file)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading programs: %v\n", err)
		return exitcodes.InvalidConfig
	}
	pc, err := config.SelectProgram(sc, name)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading programs: %v\n", err)
		return exitcodes.InvalidConfig
	}
	logger.InitLogger(supervisorLogLevel(level, sc), stderr)

	flag := termination.New()
	l := signals.New(flag, signals.WithIgnoreOnStop())
	if err := l.Start(); err != nil {
		logger.Log.Error("Signal handler setup failed", "err", err)
		return exitcodes.Crash
	}
	defer l.Stop()

	pm := supervisor.New(*pc)
	if err := pm.Start(); err != nil {
		logger.Log.Error("Program start failed", "err", err)
		return exitcodes.Crash
	}
	fmt.Fprintf(stdout, "Started [%s], PID: %d\n", pc.Name, pm.Pid())

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-flag.Done():
			logger.Log.Info("Supervisor: Forwarding termination", "program", pc.Name, "cause", flag.Cause())
			pm.Shutdown()
		case <-exited:
		}
	}()

	status, err := pm.Wait()
	if err != nil {
		logger.Log.Error("Program wait failed", "err", err)
		return exitcodes.Crash
	}
	fmt.Fprintf(stdout, "Process [%s] %s\n", pc.Name, status)

	switch {
	case status.Expected, flag.Requested():
		return exitcodes.Success
	case status.Code > 0:
		return status.Code
	default:
		return exitcodes.Crash
	}
}

func supervisorLogLevel(flagLevel string, sc *protocol.SupervisorConfig) string {
	switch {
	case flagLevel != "":
		return flagLevel
	case sc.LogLevel != "":
		return sc.LogLevel
	default:
		return consts.DefaultLogLevel
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vigil version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "vigil", Version)
		},
	}
}

// Run executes the CLI with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := &exitCoder{}
	rootCmd := newRootCmd(code)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return exitcodes.Crash
	}
	return code.code
}

func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// Personal.AI order the ending
