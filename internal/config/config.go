package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faultmesh/faultline/internal/utils"
)

// Config captures the settings required to boot the faultline engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Monitor MonitorConfig `yaml:"monitor"`
	Faults  FaultsConfig  `yaml:"faults"`
}

// ServerConfig controls the HTTP control API, gRPC probe and metrics
// listeners.
type ServerConfig struct {
	HTTPAddress     string         `yaml:"httpAddress"`
	GRPCAddress     string         `yaml:"grpcAddress"`
	MetricsAddress  string         `yaml:"metricsAddress"`
	GracefulTimeout utils.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MonitorConfig controls system metric sampling and health scoring.
type MonitorConfig struct {
	// Provider selects the snapshot source: "local" (procfs) or "remote"
	// (node agent over HTTP).
	Provider           string         `yaml:"provider"`
	AgentURL           string         `yaml:"agentURL"`
	AgentTimeout       utils.Duration `yaml:"agentTimeout"`
	DiskPath           string         `yaml:"diskPath"`
	Interval           utils.Duration `yaml:"interval"`
	HistorySize        int            `yaml:"historySize"`
	RemediationTrigger float64        `yaml:"remediationTrigger"`
}

// FaultsConfig controls the injection orchestrator.
type FaultsConfig struct {
	CatalogPath     string         `yaml:"catalogPath"`
	StepDelay       utils.Duration `yaml:"stepDelay"`
	HistorySize     int            `yaml:"historySize"`
	MaxCascadeDepth int            `yaml:"maxCascadeDepth"`
}

// Load initialises Config from a YAML file and optional environment
// overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FAULTLINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Monitor.Provider != "local" && cfg.Monitor.Provider != "remote" && cfg.Monitor.Provider != "none" {
		return nil, fmt.Errorf("monitor provider must be local, remote or none, got %q", cfg.Monitor.Provider)
	}
	if cfg.Monitor.Provider == "remote" && cfg.Monitor.AgentURL == "" {
		return nil, errors.New("monitor agentURL is required for the remote provider")
	}

	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":8480",
			GRPCAddress:     ":50052",
			MetricsAddress:  ":2112",
			GracefulTimeout: utils.Duration(10 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Monitor: MonitorConfig{
			Provider:           "local",
			AgentTimeout:       utils.Duration(5 * time.Second),
			DiskPath:           "/",
			Interval:           utils.Duration(2 * time.Second),
			HistorySize:        100,
			RemediationTrigger: 0.8,
		},
		Faults: FaultsConfig{
			StepDelay:       utils.Duration(2 * time.Second),
			HistorySize:     100,
			MaxCascadeDepth: 3,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAULTLINE_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("FAULTLINE_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("FAULTLINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FAULTLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FAULTLINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FAULTLINE_MONITOR_PROVIDER"); v != "" {
		cfg.Monitor.Provider = v
	}
	if v := os.Getenv("FAULTLINE_AGENT_URL"); v != "" {
		cfg.Monitor.AgentURL = v
	}
	if v := os.Getenv("FAULTLINE_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.AgentTimeout = utils.Duration(d)
		}
	}
	if v := os.Getenv("FAULTLINE_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = utils.Duration(d)
		}
	}
	if v := os.Getenv("FAULTLINE_MONITOR_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.HistorySize = n
		}
	}
	if v := os.Getenv("FAULTLINE_REMEDIATION_TRIGGER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Monitor.RemediationTrigger = f
		}
	}
	if v := os.Getenv("FAULTLINE_CATALOG_PATH"); v != "" {
		cfg.Faults.CatalogPath = v
	}
	if v := os.Getenv("FAULTLINE_STEP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Faults.StepDelay = utils.Duration(d)
		}
	}
	if v := os.Getenv("FAULTLINE_FAULT_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Faults.HistorySize = n
		}
	}
	if v := os.Getenv("FAULTLINE_MAX_CASCADE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Faults.MaxCascadeDepth = n
		}
	}
	if strings.EqualFold(os.Getenv("FAULTLINE_MONITOR_DISABLED"), "true") {
		cfg.Monitor.Provider = "none"
	}
}
