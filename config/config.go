// Package config loads pipeline engine settings from layered sources:
// built-in defaults, an optional TOML file, and LOGICFLOW_ environment
// variables, in ascending precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides, e.g.
// LOGICFLOW_INTAKE_BUFFER=1024.
const envPrefix = "LOGICFLOW_"

// Config holds engine tunables. Unit behavior (predicates, windows,
// stages) is declared in code or scripts, not here.
type Config struct {
	// IntakeBuffer is the pipeline's intake queue size.
	IntakeBuffer int

	// MonitorBuffer is the monitor stream's per-subscriber buffer.
	MonitorBuffer int

	// ShutdownTimeout bounds Stop's wait for quiescence.
	ShutdownTimeout time.Duration

	// StallWarn is how long a context may stay unresolved before an
	// anomaly is emitted on the monitor stream. Zero disables it.
	StallWarn time.Duration

	// Verbosity selects log detail (0 warn, 1 info, 2 debug, 3+ trace).
	Verbosity int
}

// defaults returns the built-in configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"intake.buffer":    256,
		"monitor.buffer":   256,
		"shutdown.timeout": "5s",
		"stall.warn":       "30s",
		"verbosity":        0,
	}
}

// Load reads configuration. path may be empty; a missing file at a
// non-empty path is an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	return fromKoanf(k)
}

// fromKoanf materializes a Config from the merged layers.
func fromKoanf(k *koanf.Koanf) (Config, error) {
	cfg := Config{
		IntakeBuffer:  k.Int("intake.buffer"),
		MonitorBuffer: k.Int("monitor.buffer"),
		Verbosity:     k.Int("verbosity"),
	}

	timeout, err := time.ParseDuration(k.String("shutdown.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("config: shutdown.timeout: %w", err)
	}
	cfg.ShutdownTimeout = timeout

	warn, err := time.ParseDuration(k.String("stall.warn"))
	if err != nil {
		return Config{}, fmt.Errorf("config: stall.warn: %w", err)
	}
	cfg.StallWarn = warn

	if cfg.IntakeBuffer <= 0 || cfg.MonitorBuffer <= 0 {
		return Config{}, fmt.Errorf("config: buffer sizes must be positive")
	}
	return cfg, nil
}
