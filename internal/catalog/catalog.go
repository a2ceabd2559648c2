package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faultmesh/faultline/internal/models"
	"github.com/faultmesh/faultline/internal/utils"
)

// Catalog is the read-only table of per-kind fault configuration. It is
// populated once at construction; concurrent reads need no locking.
type Catalog struct {
	configs map[models.FaultKind]models.FaultConfig
	kinds   []models.FaultKind
}

// overrideFile is the YAML root for catalog override packs.
type overrideFile struct {
	Faults map[string]overrideEntry `yaml:"faults"`
}

type overrideEntry struct {
	ImpactFactor       *float64        `yaml:"impactFactor"`
	RecoverySteps      *int            `yaml:"recoverySteps"`
	MetricsAffected    []string        `yaml:"metricsAffected"`
	Cooldown           *utils.Duration `yaml:"cooldown"`
	MaxDuration        *utils.Duration `yaml:"maxDuration"`
	CascadeProbability *float64        `yaml:"cascadeProbability"`
}

// Default returns the built-in catalog covering the four synthetic kinds.
func Default() *Catalog {
	c, _ := New(map[models.FaultKind]models.FaultConfig{
		models.KindCPUOverload: {
			ImpactFactor:       1.5,
			RecoverySteps:      5,
			MetricsAffected:    []string{models.MetricCPUUsage},
			Cooldown:           300 * time.Second,
			MaxDuration:        60 * time.Second,
			CascadeProbability: 0.3,
		},
		models.KindMemoryLeak: {
			ImpactFactor:       1.3,
			RecoverySteps:      4,
			MetricsAffected:    []string{models.MetricMemoryUsage},
			Cooldown:           400 * time.Second,
			MaxDuration:        45 * time.Second,
			CascadeProbability: 0.25,
		},
		models.KindDiskFill: {
			ImpactFactor:       1.2,
			RecoverySteps:      3,
			MetricsAffected:    []string{models.MetricDiskUsage},
			Cooldown:           500 * time.Second,
			MaxDuration:        30 * time.Second,
			CascadeProbability: 0.2,
		},
		models.KindIOStress: {
			ImpactFactor:       1.4,
			RecoverySteps:      4,
			MetricsAffected:    []string{models.MetricDiskUsage, models.MetricCPUUsage},
			Cooldown:           350 * time.Second,
			MaxDuration:        40 * time.Second,
			CascadeProbability: 0.35,
		},
	})
	return c
}

// New builds a catalog from explicit per-kind configuration.
func New(configs map[models.FaultKind]models.FaultConfig) (*Catalog, error) {
	if len(configs) == 0 {
		return nil, errors.New("catalog requires at least one fault kind")
	}

	kinds := make([]models.FaultKind, 0, len(configs))
	table := make(map[models.FaultKind]models.FaultConfig, len(configs))
	for kind, cfg := range configs {
		if err := validate(kind, cfg); err != nil {
			return nil, err
		}
		cfg.MetricsAffected = append([]string(nil), cfg.MetricsAffected...)
		table[kind] = cfg
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return &Catalog{configs: table, kinds: kinds}, nil
}

// Load returns the default catalog merged with the YAML override pack at path.
// An empty path or a missing file yields the defaults unchanged.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read catalog overrides: %w", err)
	}

	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog overrides: %w", err)
	}

	merged := make(map[models.FaultKind]models.FaultConfig)
	for kind, cfg := range Default().configs {
		merged[kind] = cfg
	}
	for name, entry := range file.Faults {
		kind := models.FaultKind(name)
		cfg := merged[kind]
		if entry.ImpactFactor != nil {
			cfg.ImpactFactor = *entry.ImpactFactor
		}
		if entry.RecoverySteps != nil {
			cfg.RecoverySteps = *entry.RecoverySteps
		}
		if entry.MetricsAffected != nil {
			cfg.MetricsAffected = entry.MetricsAffected
		}
		if entry.Cooldown != nil {
			cfg.Cooldown = entry.Cooldown.Std()
		}
		if entry.MaxDuration != nil {
			cfg.MaxDuration = entry.MaxDuration.Std()
		}
		if entry.CascadeProbability != nil {
			cfg.CascadeProbability = *entry.CascadeProbability
		}
		merged[kind] = cfg
	}

	return New(merged)
}

// Lookup returns the configuration for kind, reporting whether it exists.
func (c *Catalog) Lookup(kind models.FaultKind) (models.FaultConfig, bool) {
	cfg, ok := c.configs[kind]
	return cfg, ok
}

// Kinds returns every catalogued kind in stable sorted order.
func (c *Catalog) Kinds() []models.FaultKind {
	return append([]models.FaultKind(nil), c.kinds...)
}

// Len reports the number of catalogued kinds.
func (c *Catalog) Len() int {
	return len(c.kinds)
}

func validate(kind models.FaultKind, cfg models.FaultConfig) error {
	if kind == "" {
		return errors.New("fault kind must not be empty")
	}
	if cfg.RecoverySteps < 1 {
		return fmt.Errorf("fault %s: recovery steps must be >= 1, got %d", kind, cfg.RecoverySteps)
	}
	if cfg.MaxDuration <= 0 {
		return fmt.Errorf("fault %s: max duration must be positive, got %s", kind, cfg.MaxDuration)
	}
	if cfg.Cooldown < 0 {
		return fmt.Errorf("fault %s: cooldown must not be negative, got %s", kind, cfg.Cooldown)
	}
	if cfg.CascadeProbability < 0 || cfg.CascadeProbability > 1 {
		return fmt.Errorf("fault %s: cascade probability must be within [0,1], got %g", kind, cfg.CascadeProbability)
	}
	if cfg.ImpactFactor < 0 {
		return fmt.Errorf("fault %s: impact factor must not be negative, got %g", kind, cfg.ImpactFactor)
	}
	return nil
}
