package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faultmesh/faultline/internal/models"
)

// Provider reads the current system metrics.
type Provider interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// Scorer estimates a failure probability in [0,1] from the sampled history.
// The monitor treats it as an opaque collaborator.
type Scorer interface {
	Score(history []models.Snapshot) float64
}

// RemediationFunc runs when the failure probability crosses the configured
// trigger. It executes on its own goroutine; at most one runs at a time.
type RemediationFunc func(ctx context.Context, snap models.Snapshot)

// Thresholds holds warning and critical levels per metric, in percent.
type Thresholds struct {
	CPUWarning     float64
	CPUCritical    float64
	MemoryWarning  float64
	MemoryCritical float64
	DiskWarning    float64
	DiskCritical   float64
}

// DefaultThresholds mirrors the conventional 70/90 utilisation levels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarning:     70,
		CPUCritical:    90,
		MemoryWarning:  70,
		MemoryCritical: 90,
		DiskWarning:    80,
		DiskCritical:   90,
	}
}

// Config controls the sampling loop.
type Config struct {
	Interval           time.Duration
	HistorySize        int
	RemediationTrigger float64
	Thresholds         Thresholds
}

// Report is the externally visible health view.
type Report struct {
	Current            models.Snapshot `json:"current"`
	FailureProbability float64         `json:"failure_probability"`
	Alerts             []string        `json:"alerts"`
	RemediationActive  bool            `json:"remediation_active"`
	Samples            int             `json:"samples"`
}

// Monitor samples a snapshot provider on a fixed cadence, keeps a bounded
// history and raises threshold alerts.
type Monitor struct {
	logger   *slog.Logger
	provider Provider
	scorer   Scorer
	cfg      Config

	remediate RemediationFunc

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.RWMutex
	history     []models.Snapshot
	alerts      []string
	probability float64
	remediating bool
}

// New constructs a monitor. A nil scorer disables probability estimation.
func New(logger *slog.Logger, provider Provider, scorer Scorer, cfg Config) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.RemediationTrigger <= 0 {
		cfg.RemediationTrigger = 0.8
	}
	return &Monitor{
		logger:   logger,
		provider: provider,
		scorer:   scorer,
		cfg:      cfg,
	}
}

// SetRemediation installs the auto-remediation hook. Must be called before
// Start.
func (m *Monitor) SetRemediation(fn RemediationFunc) {
	m.remediate = fn
}

// Start launches the sampling loop. Repeated calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	if m.running.Swap(true) {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.sampleLoop(loopCtx)

	m.logger.Info("system monitor started", slog.Duration("interval", m.cfg.Interval))
}

// Stop halts sampling and waits for the loop to exit.
func (m *Monitor) Stop() {
	if !m.running.Swap(false) {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Info("system monitor stopped")
}

// Health returns the latest reading, probability and alert set.
func (m *Monitor) Health() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{
		FailureProbability: m.probability,
		Alerts:             append([]string(nil), m.alerts...),
		RemediationActive:  m.remediating,
		Samples:            len(m.history),
	}
	if len(m.history) > 0 {
		report.Current = m.history[len(m.history)-1]
	}
	return report
}

// History returns a copy of the sampled snapshots, oldest first.
func (m *Monitor) History() []models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Snapshot(nil), m.history...)
}

func (m *Monitor) sampleLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	snap, err := m.provider.Snapshot(ctx)
	if err != nil {
		m.logger.Warn("metrics collection failed", slog.Any("error", err))
		return
	}

	alerts := m.cfg.Thresholds.evaluate(snap)

	m.mu.Lock()
	m.history = append(m.history, snap)
	if excess := len(m.history) - m.cfg.HistorySize; excess > 0 {
		m.history = append([]models.Snapshot(nil), m.history[excess:]...)
	}
	probability := 0.0
	if m.scorer != nil {
		probability = m.scorer.Score(m.history)
	}
	m.probability = probability
	m.alerts = alerts
	shouldRemediate := m.remediate != nil && !m.remediating && probability >= m.cfg.RemediationTrigger
	if shouldRemediate {
		m.remediating = true
	}
	m.mu.Unlock()

	m.logger.Debug("system status",
		slog.Float64("cpu", snap.CPUUsage),
		slog.Float64("memory", snap.MemoryUsage),
		slog.Float64("disk", snap.DiskUsage),
		slog.Float64("failure_probability", probability),
	)
	for _, alert := range alerts {
		m.logger.Warn("threshold alert", slog.String("alert", alert))
	}

	if shouldRemediate {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.logger.Info("starting automatic remediation",
				slog.Float64("failure_probability", probability))
			m.remediate(ctx, snap)
			m.mu.Lock()
			m.remediating = false
			m.mu.Unlock()
			m.logger.Info("remediation completed")
		}()
	}
}

func (t Thresholds) evaluate(snap models.Snapshot) []string {
	var alerts []string
	check := func(name string, value, warning, critical float64) {
		switch {
		case critical > 0 && value >= critical:
			alerts = append(alerts, fmt.Sprintf("%s critical: %.1f%% >= %.1f%%", name, value, critical))
		case warning > 0 && value >= warning:
			alerts = append(alerts, fmt.Sprintf("%s warning: %.1f%% >= %.1f%%", name, value, warning))
		}
	}
	check("cpu", snap.CPUUsage, t.CPUWarning, t.CPUCritical)
	check("memory", snap.MemoryUsage, t.MemoryWarning, t.MemoryCritical)
	check("disk", snap.DiskUsage, t.DiskWarning, t.DiskCritical)
	return alerts
}
