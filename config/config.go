package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/jsibridge/errors"
	"github.com/wippyai/jsibridge/jsi"
)

// Config is the configuration of a bridge runtime and the jsirun CLI.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Natives   NativesConfig   `yaml:"natives"`
	Guest     GuestConfig     `yaml:"guest"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// SchedulerConfig controls the task scheduler.
type SchedulerConfig struct {
	// Bind runs scheduled tasks on the event loop. When false the
	// scheduler is unbound and runs tasks inline.
	Bind            bool     `yaml:"bind"`
	DefaultPriority Priority `yaml:"default_priority"`
}

// NativesConfig controls the standard host functions.
type NativesConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// GuestConfig optionally loads a wasm module whose heap backs
// native.alloc.
type GuestConfig struct {
	Module    string `yaml:"module"`
	Memory    string `yaml:"memory"`
	Allocator string `yaml:"allocator"`
}

// Priority is a scheduler priority given by name ("normal") or number (3).
type Priority jsi.SchedulerPriority

func (p *Priority) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a priority name or integer, got %v", value.Tag)
	}
	if i, err := strconv.Atoi(value.Value); err == nil {
		*p = Priority(i)
		return nil
	}
	parsed, ok := jsi.ParseSchedulerPriority(value.Value)
	if !ok {
		return fmt.Errorf("unknown priority %q", value.Value)
	}
	*p = Priority(parsed)
	return nil
}

func (p Priority) MarshalYAML() (any, error) {
	return jsi.SchedulerPriority(p).String(), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Scheduler: SchedulerConfig{
			Bind:            true,
			DefaultPriority: Priority(jsi.NormalPriority),
		},
		Natives: NativesConfig{
			Enabled:   true,
			Namespace: "native",
		},
		Guest: GuestConfig{
			Memory:    "memory",
			Allocator: "cabi_realloc",
		},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read "+path)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("log", "level").
			Value(c.Log.Level).
			Cause(err).
			Build()
	}
	p := jsi.SchedulerPriority(c.Scheduler.DefaultPriority)
	if p < jsi.ImmediatePriority || p > jsi.IdlePriority {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("scheduler", "default_priority").
			Value(int(p)).
			Detail("must be between %d and %d", jsi.ImmediatePriority, jsi.IdlePriority).
			Build()
	}
	if c.Natives.Enabled && c.Natives.Namespace == "" {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("natives", "namespace").
			Detail("namespace cannot be empty").
			Build()
	}
	if c.Guest.Module != "" && c.Guest.Memory == "" {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("guest", "memory").
			Detail("memory export name cannot be empty").
			Build()
	}
	return nil
}

// Logger builds the zap logger described by c.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
