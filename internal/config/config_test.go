package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faultmesh/faultline/internal/utils"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HTTPAddress != ":8480" {
		t.Fatalf("unexpected http address %s", cfg.Server.HTTPAddress)
	}
	if cfg.Faults.StepDelay.Std() != 2*time.Second {
		t.Fatalf("unexpected step delay %s", cfg.Faults.StepDelay)
	}
	if cfg.Monitor.Provider != "local" {
		t.Fatalf("unexpected provider %s", cfg.Monitor.Provider)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `server:
  httpAddress: ":9999"
  gracefulTimeout: 30s
monitor:
  provider: remote
  agentURL: http://agent:9000
faults:
  stepDelay: 500ms
  maxCascadeDepth: 5
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HTTPAddress != ":9999" || cfg.Server.GracefulTimeout.Std() != 30*time.Second {
		t.Fatalf("yaml overrides not applied: %+v", cfg.Server)
	}
	if cfg.Monitor.Provider != "remote" || cfg.Monitor.AgentURL != "http://agent:9000" {
		t.Fatalf("monitor overrides not applied: %+v", cfg.Monitor)
	}
	if cfg.Faults.StepDelay.Std() != 500*time.Millisecond || cfg.Faults.MaxCascadeDepth != 5 {
		t.Fatalf("fault overrides not applied: %+v", cfg.Faults)
	}
	if cfg.Server.MetricsAddress != ":2112" {
		t.Fatalf("defaults must survive partial files, got %s", cfg.Server.MetricsAddress)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadRejectsRemoteWithoutAgentURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  provider: remote\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for remote provider without URL")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FAULTLINE_HTTP_ADDRESS", ":7777")
	t.Setenv("FAULTLINE_STEP_DELAY", "250ms")
	t.Setenv("FAULTLINE_LOG_FORMAT", "json")
	t.Setenv("FAULTLINE_MONITOR_DISABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HTTPAddress != ":7777" {
		t.Fatalf("env override not applied: %s", cfg.Server.HTTPAddress)
	}
	if cfg.Faults.StepDelay != utils.Duration(250*time.Millisecond) {
		t.Fatalf("env override not applied: %s", cfg.Faults.StepDelay)
	}
	if !cfg.Logging.JSON {
		t.Fatalf("expected json logging")
	}
	if cfg.Monitor.Provider != "none" {
		t.Fatalf("expected monitor disabled, got %s", cfg.Monitor.Provider)
	}
}
