package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/faultmesh/faultline/internal/catalog"
	"github.com/faultmesh/faultline/internal/metrics"
	"github.com/faultmesh/faultline/internal/models"
)

// Injection error taxonomy. Rejections leave the registry untouched.
var (
	ErrUnknownKind  = errors.New("unknown fault kind")
	ErrInCooldown   = errors.New("fault kind in cooldown")
	ErrShuttingDown = errors.New("orchestrator shutting down")
)

// SnapshotProvider reads the current system metrics. A failed read degrades
// improvement measurement to zero; it is never surfaced as a hard failure.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// Behavior is the per-kind capability pair: create the synthetic condition
// and run one best-effort, idempotent remediation step.
type Behavior interface {
	Simulate(ctx context.Context) error
	Recover(ctx context.Context, step int) bool
}

const (
	defaultStepDelay       = 2 * time.Second
	defaultHistorySize     = 100
	defaultMaxCascadeDepth = 3
)

// Orchestrator owns the fault registry, cooldown gate, success counters and
// recovery task supervision. All mutable state sits behind one coarse mutex;
// recovery steps execute outside the lock.
type Orchestrator struct {
	logger    *slog.Logger
	catalog   *catalog.Catalog
	provider  SnapshotProvider
	behaviors map[models.FaultKind]Behavior

	stepDelay       time.Duration
	historySize     int
	maxCascadeDepth int

	now       func() time.Time
	randFloat func() float64

	quit     chan struct{}
	quitOnce sync.Once
	tasks    sync.WaitGroup

	mu          sync.Mutex
	registry    map[models.FaultKind]*fault
	lastTrigger map[models.FaultKind]time.Time
	rates       map[models.FaultKind]*successCount
	history     []models.RecoveryOutcome
	closed      bool
}

// fault is the registry entry for one injected fault. The owning recovery
// task is the only writer after creation, except for the cooperative Active
// flag which Cancel and Shutdown may clear.
type fault struct {
	kind              models.FaultKind
	active            bool
	startedAt         time.Time
	duration          time.Duration
	recoveryAttempted bool
	before            models.Snapshot
}

type successCount struct {
	attempts  int
	successes int
}

// Option customises orchestrator construction.
type Option func(*Orchestrator)

// WithStepDelay sets the fixed delay between recovery steps.
func WithStepDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stepDelay = d
		}
	}
}

// WithHistorySize bounds the retained recovery outcome history.
func WithHistorySize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historySize = n
		}
	}
}

// WithMaxCascadeDepth bounds recursive cascade re-entry into Inject.
func WithMaxCascadeDepth(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxCascadeDepth = n
		}
	}
}

// WithClock substitutes the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRand substitutes the uniform [0,1) source used for cascade draws.
func WithRand(f func() float64) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.randFloat = f
		}
	}
}

// WithBehavior overrides the remediation behavior for one kind.
func WithBehavior(kind models.FaultKind, b Behavior) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.behaviors[kind] = b
		}
	}
}

// New constructs an orchestrator over the given catalog and snapshot provider.
func New(logger *slog.Logger, cat *catalog.Catalog, provider SnapshotProvider, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rngMu sync.Mutex

	o := &Orchestrator{
		logger:          logger,
		catalog:         cat,
		provider:        provider,
		behaviors:       make(map[models.FaultKind]Behavior),
		stepDelay:       defaultStepDelay,
		historySize:     defaultHistorySize,
		maxCascadeDepth: defaultMaxCascadeDepth,
		now:             time.Now,
		randFloat: func() float64 {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.Float64()
		},
		quit:        make(chan struct{}),
		registry:    make(map[models.FaultKind]*fault),
		lastTrigger: make(map[models.FaultKind]time.Time),
		rates:       make(map[models.FaultKind]*successCount),
	}

	for _, kind := range cat.Kinds() {
		o.behaviors[kind] = behaviorFor(kind)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Inject attempts to create a synthetic fault of the given kind. A
// non-positive requested duration means "use the catalogued maximum". The
// boolean is the caller-visible outcome; the error carries the rejection
// reason (ErrUnknownKind, ErrInCooldown, ErrShuttingDown).
func (o *Orchestrator) Inject(ctx context.Context, kind models.FaultKind, requested time.Duration) (bool, error) {
	return o.inject(ctx, kind, requested, 0)
}

func (o *Orchestrator) inject(ctx context.Context, kind models.FaultKind, requested time.Duration, depth int) (bool, error) {
	cfg, ok := o.catalog.Lookup(kind)
	if !ok {
		metrics.ObserveInjection(string(kind), false)
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	effective := cfg.MaxDuration
	if requested > 0 && requested < cfg.MaxDuration {
		effective = requested
	}

	// Snapshot capture happens before admission so the lock never covers a
	// collaborator call. A failed read degrades to an empty snapshot.
	before := o.captureSnapshot(ctx)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		metrics.ObserveInjection(string(kind), false)
		return false, ErrShuttingDown
	}
	now := o.now()
	if last, seen := o.lastTrigger[kind]; seen && now.Sub(last) < cfg.Cooldown {
		o.mu.Unlock()
		metrics.ObserveInjection(string(kind), false)
		return false, fmt.Errorf("%w: %s", ErrInCooldown, kind)
	}

	f := &fault{
		kind:      kind,
		active:    true,
		startedAt: now,
		duration:  effective,
		before:    before,
	}
	o.registry[kind] = f
	o.lastTrigger[kind] = now
	activeCount := o.activeCountLocked()
	o.tasks.Add(1)
	o.mu.Unlock()

	metrics.ObserveInjection(string(kind), true)
	metrics.SetActiveFaults(activeCount)
	o.logger.Info("fault injected",
		slog.String("kind", string(kind)),
		slog.Duration("duration", effective),
		slog.Float64("impact_factor", cfg.ImpactFactor),
	)

	go o.runRecovery(f, cfg)

	if o.randFloat() < cfg.CascadeProbability {
		o.cascadeFrom(ctx, kind, depth)
	}

	return true, nil
}

// Cancel clears the active flag on an in-flight fault. The owning recovery
// task notices at its next step boundary and exits early.
func (o *Orchestrator) Cancel(kind models.FaultKind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.registry[kind]
	if !ok || !f.active {
		return false
	}
	f.active = false
	o.logger.Info("fault cancelled", slog.String("kind", string(kind)))
	return true
}

// ActiveFaults reports the active flag for every registry entry, resolved
// historical entries included.
func (o *Orchestrator) ActiveFaults() map[models.FaultKind]bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[models.FaultKind]bool, len(o.registry))
	for kind, f := range o.registry {
		out[kind] = f.active
	}
	return out
}

// RecoveryStatus returns one line per currently active fault, in stable kind
// order.
func (o *Orchestrator) RecoveryStatus() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	kinds := make([]models.FaultKind, 0, len(o.registry))
	for kind, f := range o.registry {
		if f.active {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	status := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		if o.registry[kind].recoveryAttempted {
			status = append(status, fmt.Sprintf("Recovering from %s", kind))
		} else {
			status = append(status, fmt.Sprintf("Monitoring %s", kind))
		}
	}
	return status
}

// Statistics aggregates the registry and success counters into a read-only
// snapshot.
func (o *Orchestrator) Statistics() models.Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	stats := models.Statistics{
		ActiveCount: o.activeCountLocked(),
		HistorySize: len(o.history),
		Kinds:       make(map[models.FaultKind]models.KindStats),
	}

	for kind, f := range o.registry {
		stats.Kinds[kind] = models.KindStats{
			Active:            f.active,
			Duration:          now.Sub(f.startedAt),
			RecoveryAttempted: f.recoveryAttempted,
		}
	}
	for kind, count := range o.rates {
		entry := stats.Kinds[kind]
		entry.Attempts = count.attempts
		if count.attempts > 0 {
			entry.SuccessRate = float64(count.successes) / float64(count.attempts)
		}
		stats.Kinds[kind] = entry
	}
	return stats
}

// History returns a copy of the bounded recovery outcome history, oldest
// first.
func (o *Orchestrator) History() []models.RecoveryOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.RecoveryOutcome(nil), o.history...)
}

// Shutdown rejects further injections, cancels in-flight faults and joins
// their recovery tasks. It returns ctx.Err if the tasks do not drain in time.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, f := range o.registry {
		f.active = false
	}
	o.mu.Unlock()

	o.quitOnce.Do(func() { close(o.quit) })

	done := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain recovery tasks: %w", ctx.Err())
	}
}

func (o *Orchestrator) captureSnapshot(ctx context.Context) models.Snapshot {
	if o.provider == nil {
		return models.Snapshot{}
	}
	snap, err := o.provider.Snapshot(ctx)
	if err != nil {
		o.logger.Debug("snapshot collection failed", slog.Any("error", err))
		return models.Snapshot{}
	}
	return snap
}

func (o *Orchestrator) activeCountLocked() int {
	n := 0
	for _, f := range o.registry {
		if f.active {
			n++
		}
	}
	return n
}
