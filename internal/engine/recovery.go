package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/faultmesh/faultline/internal/metrics"
	"github.com/faultmesh/faultline/internal/models"
)

// runRecovery drives the fixed step sequence for one injected fault. Step
// execution, snapshot capture and the inter-step wait all happen outside the
// orchestrator lock; the loop re-checks the cooperative active flag at every
// step boundary. Remediation failures never abort the loop, so the task
// terminates within roughly steps*stepDelay plus remediation cost.
func (o *Orchestrator) runRecovery(f *fault, cfg models.FaultConfig) {
	defer o.tasks.Done()

	ctx := context.Background()
	behavior := o.behaviors[f.kind]
	start := o.now()
	stepsCompleted := 0
	improvements := make(map[int]float64, cfg.RecoverySteps)

	o.logger.Info("starting recovery", slog.String("kind", string(f.kind)))

	if behavior != nil {
		if err := behavior.Simulate(ctx); err != nil {
			o.logger.Warn("fault simulation failed",
				slog.String("kind", string(f.kind)), slog.Any("error", err))
		}
	}

	for step := 0; step < cfg.RecoverySteps; step++ {
		o.mu.Lock()
		alive := f.active
		if alive {
			f.recoveryAttempted = true
		}
		o.mu.Unlock()
		if !alive {
			break
		}

		if behavior != nil && behavior.Recover(ctx, step) {
			stepsCompleted++
		}

		current := o.captureSnapshot(ctx)
		improvements[step] = stepImprovement(cfg.MetricsAffected, f.before, current)

		if step < cfg.RecoverySteps-1 {
			select {
			case <-time.After(o.stepDelay):
			case <-o.quit:
			}
		}
	}

	outcome := models.RecoveryOutcome{
		Kind:           f.kind,
		StartedAt:      start,
		StepsCompleted: stepsCompleted,
		Improvements:   improvements,
		Duration:       o.now().Sub(start),
		Success:        stepsCompleted == cfg.RecoverySteps,
	}

	o.mu.Lock()
	f.active = false
	o.history = append(o.history, outcome)
	if excess := len(o.history) - o.historySize; excess > 0 {
		o.history = append([]models.RecoveryOutcome(nil), o.history[excess:]...)
	}
	count, ok := o.rates[f.kind]
	if !ok {
		count = &successCount{}
		o.rates[f.kind] = count
	}
	count.attempts++
	if outcome.Success {
		count.successes++
	}
	activeCount := o.activeCountLocked()
	o.mu.Unlock()

	metrics.ObserveRecovery(string(f.kind), outcome.Success, outcome.Duration)
	metrics.SetActiveFaults(activeCount)
	o.logger.Info("recovery completed",
		slog.String("kind", string(f.kind)),
		slog.Int("steps_completed", stepsCompleted),
		slog.Bool("success", outcome.Success),
	)
}

// stepImprovement averages the per-metric relative improvement between the
// injection-time snapshot and the current one. Metrics missing from either
// snapshot, or that did not improve, contribute no sample.
func stepImprovement(affected []string, before, current models.Snapshot) float64 {
	sum := 0.0
	samples := 0
	for _, name := range affected {
		initial, ok := before.Metric(name)
		if !ok {
			continue
		}
		now, ok := current.Metric(name)
		if !ok {
			continue
		}
		if initial > now && initial != 0 {
			sum += (initial - now) / initial
			samples++
		}
	}
	if samples == 0 {
		return 0
	}
	return sum / float64(samples)
}
