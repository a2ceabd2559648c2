package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/faultmesh/faultline/internal/engine"
	"github.com/faultmesh/faultline/internal/models"
	"github.com/faultmesh/faultline/internal/monitor"
	"github.com/faultmesh/faultline/internal/patterns"
	"github.com/faultmesh/faultline/internal/utils"
)

// Rejection reasons reported to API consumers.
const (
	ReasonUnknownKind  = "unknown_kind"
	ReasonInCooldown   = "in_cooldown"
	ReasonShuttingDown = "shutting_down"
)

// InjectResult is the caller-visible outcome of an injection request.
type InjectResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// FaultService is the facade consumed by the HTTP API. It fronts the
// orchestrator, the system monitor and the pattern miner.
type FaultService struct {
	logger    *slog.Logger
	orch      *engine.Orchestrator
	monitor   *monitor.Monitor
	miner     *patterns.Miner
	latencies *utils.LatencyTracker
}

// NewFaultService constructs the facade. The monitor may be nil when local
// sampling is disabled.
func NewFaultService(logger *slog.Logger, orch *engine.Orchestrator, mon *monitor.Monitor, miner *patterns.Miner) *FaultService {
	if logger == nil {
		logger = slog.Default()
	}
	if miner == nil {
		miner = patterns.NewMiner(logger)
	}
	return &FaultService{
		logger:    logger,
		orch:      orch,
		monitor:   mon,
		miner:     miner,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// InjectFault requests a synthetic fault; durationSeconds <= 0 means "use
// the catalogued maximum".
func (s *FaultService) InjectFault(ctx context.Context, kind string, durationSeconds int) InjectResult {
	start := time.Now()
	accepted, err := s.orch.Inject(ctx, models.FaultKind(kind), time.Duration(durationSeconds)*time.Second)
	duration := time.Since(start)

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 50 && count%50 == 0 {
		s.logger.Info("injection latency",
			slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if accepted {
		return InjectResult{Accepted: true}
	}

	result := InjectResult{Reason: rejectionReason(err)}
	s.logger.Debug("injection rejected",
		slog.String("kind", kind), slog.String("reason", result.Reason))
	return result
}

// CancelFault clears the active flag on an in-flight fault.
func (s *FaultService) CancelFault(kind string) bool {
	return s.orch.Cancel(models.FaultKind(kind))
}

// ActiveFaults reports the active flag per known fault kind.
func (s *FaultService) ActiveFaults() map[string]bool {
	faults := s.orch.ActiveFaults()
	out := make(map[string]bool, len(faults))
	for kind, active := range faults {
		out[string(kind)] = active
	}
	return out
}

// Statistics returns the orchestrator's aggregate view.
func (s *FaultService) Statistics() models.Statistics {
	return s.orch.Statistics()
}

// RecoveryStatus returns one human-readable line per active fault.
func (s *FaultService) RecoveryStatus() []string {
	return s.orch.RecoveryStatus()
}

// Patterns mines the recovery outcome history into per-kind patterns.
func (s *FaultService) Patterns() []models.RecoveryPattern {
	return s.miner.Mine(s.orch.History())
}

// SystemHealth returns the monitor's latest report, or an empty report when
// local sampling is disabled.
func (s *FaultService) SystemHealth() monitor.Report {
	if s.monitor == nil {
		return monitor.Report{}
	}
	return s.monitor.Health()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrUnknownKind):
		return ReasonUnknownKind
	case errors.Is(err, engine.ErrInCooldown):
		return ReasonInCooldown
	case errors.Is(err, engine.ErrShuttingDown):
		return ReasonShuttingDown
	default:
		return "rejected"
	}
}
