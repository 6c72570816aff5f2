package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/turtacn/Vigil/pkg/consts"
	verrors "github.com/turtacn/Vigil/pkg/errors"
	"github.com/turtacn/Vigil/pkg/logger"
	"github.com/turtacn/Vigil/pkg/protocol"
	"gopkg.in/yaml.v3"
)

// Worker config keys, shared with the CLI flag bindings.
const (
	KeyMode          = "mode"
	KeyDuration      = "duration"
	KeyCrashOnExit   = "crash_on_exit"
	KeyHandleSignals = "handle_signals"
	KeyLogLevel      = "log_level"
	KeyMetricsAddr   = "metrics_addr"
)

// FlagBindings maps config keys to CLI flag names.
type FlagBindings map[string]string

// LoadWorker resolves the worker configuration. Precedence, highest first:
// changed flags, WORKER_* environment, the optional config file, defaults.
func LoadWorker(file string, flags *pflag.FlagSet, bindings FlagBindings) (*protocol.WorkerConfig, error) {
	v := viper.New()

	v.SetEnvPrefix(consts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// WORKER_MODE="" is a value, not an absence.
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault(KeyMode, string(consts.DefaultMode))
	v.SetDefault(KeyDuration, consts.DefaultDuration)
	v.SetDefault(KeyCrashOnExit, false)
	v.SetDefault(KeyHandleSignals, true)
	v.SetDefault(KeyLogLevel, consts.DefaultLogLevel)
	v.SetDefault(KeyMetricsAddr, "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, verrors.New(verrors.ErrCodeConfigInvalid, "LoadWorker", "cannot read config file "+file, err)
		}
	}

	if flags != nil {
		for key, name := range bindings {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, verrors.New(verrors.ErrCodeConfigInvalid, "LoadWorker", "cannot bind flag "+name, err)
			}
		}
	}

	var cfg protocol.WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "LoadWorker", "cannot decode configuration", err)
	}
	if err := ValidateWorker(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateWorker checks the resolved worker configuration.
func ValidateWorker(cfg *protocol.WorkerConfig) error {
	if cfg.Duration <= 0 {
		return verrors.New(verrors.ErrCodeConfigInvalid, "ValidateWorker",
			fmt.Sprintf("duration must be positive, got %s", cfg.Duration), nil)
	}
	if _, ok := logger.ParseLevel(cfg.LogLevel); !ok {
		return verrors.New(verrors.ErrCodeConfigInvalid, "ValidateWorker", "unknown log level "+cfg.LogLevel, nil)
	}
	return nil
}

// LoadSupervisor reads and parses a supervisor programs file.
func LoadSupervisor(path string) (*protocol.SupervisorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "LoadSupervisor", "cannot read "+path, err)
	}
	return ParseSupervisor(data)
}

// ParseSupervisor is LoadSupervisor on an in-memory document.
func ParseSupervisor(data []byte) (*protocol.SupervisorConfig, error) {
	var sc protocol.SupervisorConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "ParseSupervisor", "invalid YAML", err)
	}
	if len(sc.Programs) == 0 {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "ParseSupervisor", "no programs defined", nil)
	}
	if _, ok := logger.ParseLevel(sc.LogLevel); !ok {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "ParseSupervisor", "unknown log level "+sc.LogLevel, nil)
	}
	return &sc, nil
}

// SelectProgram returns the program called name, validated and with defaults
// filled. An empty name selects the only program in the file.
func SelectProgram(sc *protocol.SupervisorConfig, name string) (*protocol.ProgramConfig, error) {
	if name == "" {
		if len(sc.Programs) > 1 {
			names := make([]string, 0, len(sc.Programs))
			for n := range sc.Programs {
				names = append(names, n)
			}
			sort.Strings(names)
			return nil, verrors.New(verrors.ErrCodeConfigInvalid, "SelectProgram",
				"several programs defined, pick one of "+strings.Join(names, ", "), nil)
		}
		for n := range sc.Programs {
			name = n
		}
	}

	pc, ok := sc.Programs[name]
	if !ok {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "SelectProgram", "unknown program "+name, nil)
	}
	pc.Name = name

	if err := ValidateProgram(&pc); err != nil {
		return nil, err
	}
	return &pc, nil
}

// LoadProgram reads a supervisor file and returns the program called name.
func LoadProgram(path, name string) (*protocol.ProgramConfig, error) {
	sc, err := LoadSupervisor(path)
	if err != nil {
		return nil, err
	}
	return SelectProgram(sc, name)
}

// ParseProgram is LoadProgram on an in-memory document.
func ParseProgram(data []byte, name string) (*protocol.ProgramConfig, error) {
	sc, err := ParseSupervisor(data)
	if err != nil {
		return nil, err
	}
	return SelectProgram(sc, name)
}

// ValidateProgram fills defaults and rejects unusable program definitions.
func ValidateProgram(pc *protocol.ProgramConfig) error {
	if len(pc.Command) == 0 {
		return verrors.New(verrors.ErrCodeConfigInvalid, "ValidateProgram", "program "+pc.Name+" has no command", nil)
	}
	if pc.Umask != "" {
		if _, err := strconv.ParseUint(pc.Umask, 8, 32); err != nil {
			return verrors.New(verrors.ErrCodeConfigInvalid, "ValidateProgram", "umask must be octal, got "+pc.Umask, err)
		}
	}
	if pc.StopSignal == "" {
		pc.StopSignal = consts.DefaultStopSig
	}
	if pc.StopTimeout != "" {
		if _, err := time.ParseDuration(pc.StopTimeout); err != nil {
			return verrors.New(verrors.ErrCodeConfigInvalid, "ValidateProgram", "bad stoptimeout "+pc.StopTimeout, err)
		}
	}
	if len(pc.ExitCodes) == 0 {
		pc.ExitCodes = []int{0}
	}
	return nil
}

// Personal.AI order the ending
