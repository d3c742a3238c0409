// Package config loads the kernel configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the kernel configuration.
type Config struct {
	Limits  LimitsConfig  `yaml:"limits"`
	Options OptionsConfig `yaml:"options"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Trace   TraceConfig   `yaml:"trace"`
}

// LimitsConfig sizes the kernel tables.
type LimitsConfig struct {
	// ProcessOpenMax is the size of each descriptor table, standard
	// descriptors included. The system-wide open file table holds ten
	// times as many entries.
	ProcessOpenMax int `yaml:"process_open_max" validate:"gt=3"`
	// PIDMax is the highest PID.
	PIDMax int `yaml:"pid_max" validate:"gte=2"`
	// MaxThreads bounds live kernel threads.
	MaxThreads int `yaml:"max_threads" validate:"gte=1"`
	// AddrspaceBudget bounds user memory in bytes across all processes.
	// Zero is unlimited.
	AddrspaceBudget int64 `yaml:"addrspace_budget" validate:"gte=0"`
}

// SystemOpenMax is the size of the system-wide open file table.
func (l LimitsConfig) SystemOpenMax() int {
	return 10 * l.ProcessOpenMax
}

// OptionsConfig switches groups of system calls on.
type OptionsConfig struct {
	File    bool `yaml:"file"`
	Fork    bool `yaml:"fork"`
	Waitpid bool `yaml:"waitpid"`
}

// StoreConfig selects the file store. An empty Root keeps files in memory.
type StoreConfig struct {
	Root string `yaml:"root"`
}

// LogConfig configures the slog handler. Format auto picks text on a
// terminal and JSON otherwise.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json auto"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// TraceConfig selects where syscall spans are exported. Empty disables
// export.
type TraceConfig struct {
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Limits: LimitsConfig{
			ProcessOpenMax: 16,
			PIDMax:         256,
			MaxThreads:     512,
		},
		Options: OptionsConfig{
			File:    true,
			Fork:    true,
			Waitpid: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validation errors.
var (
	ErrOpenMax       = errors.New("limits.process_open_max must leave room above the standard descriptors")
	ErrPIDMax        = errors.New("limits.pid_max must be at least 2")
	ErrMaxThreads    = errors.New("limits.max_threads must be at least 1")
	ErrBudget        = errors.New("limits.addrspace_budget must not be negative")
	ErrLogLevel      = errors.New("log.level must be debug, info, warn or error")
	ErrLogFormat     = errors.New("log.format must be text, json or auto")
	ErrMetricsAddr   = errors.New("metrics.addr must be host:port")
	ErrTraceExporter = errors.New("trace.exporter must be empty or stdout")
)

var fieldErrors = map[string]error{
	"Config.Limits.ProcessOpenMax":  ErrOpenMax,
	"Config.Limits.PIDMax":          ErrPIDMax,
	"Config.Limits.MaxThreads":      ErrMaxThreads,
	"Config.Limits.AddrspaceBudget": ErrBudget,
	"Config.Log.Level":              ErrLogLevel,
	"Config.Log.Format":             ErrLogFormat,
	"Config.Metrics.Addr":           ErrMetricsAddr,
	"Config.Trace.Exporter":         ErrTraceExporter,
}

var validate = validator.New()

// Validate checks the configuration for values the kernel cannot run with.
// The first offending field is reported.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if sentinel, ok := fieldErrors[fe.StructNamespace()]; ok {
		return fmt.Errorf("%w (got %v)", sentinel, fe.Value())
	}
	return fe
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
