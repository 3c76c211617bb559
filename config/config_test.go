package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.IntakeBuffer != 256 {
		t.Errorf("IntakeBuffer = %d, want 256", cfg.IntakeBuffer)
	}
	if cfg.MonitorBuffer != 256 {
		t.Errorf("MonitorBuffer = %d, want 256", cfg.MonitorBuffer)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.StallWarn != 30*time.Second {
		t.Errorf("StallWarn = %v, want 30s", cfg.StallWarn)
	}
	if cfg.Verbosity != 0 {
		t.Errorf("Verbosity = %d, want 0", cfg.Verbosity)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logicflow.toml")
	content := `verbosity = 2

[intake]
buffer = 1024

[shutdown]
timeout = "10s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.IntakeBuffer != 1024 {
		t.Errorf("IntakeBuffer = %d, want 1024", cfg.IntakeBuffer)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if cfg.Verbosity != 2 {
		t.Errorf("Verbosity = %d, want 2", cfg.Verbosity)
	}
	// Untouched keys keep their defaults.
	if cfg.MonitorBuffer != 256 {
		t.Errorf("MonitorBuffer = %d, want 256", cfg.MonitorBuffer)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load accepted a missing config file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logicflow.toml")
	content := `[intake]
buffer = 1024
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("LOGICFLOW_INTAKE_BUFFER", "2048")
	t.Setenv("LOGICFLOW_VERBOSITY", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IntakeBuffer != 2048 {
		t.Errorf("IntakeBuffer = %d, want the env override 2048", cfg.IntakeBuffer)
	}
	if cfg.Verbosity != 3 {
		t.Errorf("Verbosity = %d, want the env override 3", cfg.Verbosity)
	}
}

func TestBadDuration(t *testing.T) {
	t.Setenv("LOGICFLOW_SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Error("Load accepted an unparseable shutdown timeout")
	}
}

func TestStallWarnOverride(t *testing.T) {
	t.Setenv("LOGICFLOW_STALL_WARN", "250ms")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StallWarn != 250*time.Millisecond {
		t.Errorf("StallWarn = %v, want the env override 250ms", cfg.StallWarn)
	}
}

func TestNonPositiveBuffer(t *testing.T) {
	t.Setenv("LOGICFLOW_INTAKE_BUFFER", "0")
	if _, err := Load(""); err == nil {
		t.Error("Load accepted a zero intake buffer")
	}
}
