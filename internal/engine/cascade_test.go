package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/faultmesh/faultline/internal/catalog"
	"github.com/faultmesh/faultline/internal/models"
)

func cascadeCatalog(t *testing.T, probability float64) *catalog.Catalog {
	t.Helper()
	configs := make(map[models.FaultKind]models.FaultConfig)
	for _, kind := range models.AllKinds() {
		configs[kind] = models.FaultConfig{
			RecoverySteps:      5,
			MetricsAffected:    []string{models.MetricCPUUsage},
			Cooldown:           0,
			MaxDuration:        40 * time.Second,
			CascadeProbability: probability,
		}
	}
	cat, err := catalog.New(configs)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return cat
}

func stubAllBehaviors(o *Orchestrator) {
	for _, kind := range models.AllKinds() {
		o.behaviors[kind] = &stubBehavior{}
	}
}

func TestCascadeFiresDeterministically(t *testing.T) {
	o := New(nil, cascadeCatalog(t, 1.0), &stubProvider{},
		WithStepDelay(100*time.Millisecond),
		WithMaxCascadeDepth(2),
		WithRand(func() float64 { return 0 }),
	)
	stubAllBehaviors(o)

	if accepted, err := o.Inject(context.Background(), models.KindIOStress, 10*time.Second); !accepted || err != nil {
		t.Fatalf("primary injection failed: %v", err)
	}

	active := o.ActiveFaults()
	for _, kind := range models.AllKinds() {
		if !active[kind] {
			t.Fatalf("expected cascade to activate %s, got %v", kind, active)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCascadeRespectsDepthBudget(t *testing.T) {
	injections := 0
	var mu sync.Mutex

	o := New(nil, cascadeCatalog(t, 1.0), &stubProvider{},
		WithStepDelay(time.Millisecond),
		WithMaxCascadeDepth(1),
		WithRand(func() float64 {
			mu.Lock()
			injections++
			mu.Unlock()
			return 0
		}),
	)
	stubAllBehaviors(o)

	if accepted, err := o.Inject(context.Background(), models.KindCPUOverload, 0); !accepted || err != nil {
		t.Fatalf("primary injection failed: %v", err)
	}

	// Depth 0 cascades into the three other kinds; their own cascade
	// evaluation runs at depth 1 and must stop there even with zero cooldown
	// and certain probabilities.
	mu.Lock()
	draws := injections
	mu.Unlock()
	if draws > 16 {
		t.Fatalf("cascade storm not bounded: %d random draws", draws)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCascadeZeroProbabilityNeverFires(t *testing.T) {
	o := New(nil, cascadeCatalog(t, 0), &stubProvider{},
		WithStepDelay(time.Millisecond),
		WithRand(func() float64 { return 0 }),
	)
	stubAllBehaviors(o)

	if accepted, err := o.Inject(context.Background(), models.KindDiskFill, 0); !accepted || err != nil {
		t.Fatalf("injection failed: %v", err)
	}
	if got := len(o.ActiveFaults()); got != 1 {
		t.Fatalf("cascade must not fire at probability 0, got %d entries", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCascadeDurationIsHalfOfMax(t *testing.T) {
	// Fire exactly the primary gate and the first candidate draw.
	draws := 0
	var mu sync.Mutex
	o := New(nil, cascadeCatalog(t, 1.0), &stubProvider{},
		WithStepDelay(50*time.Millisecond),
		WithMaxCascadeDepth(1),
		WithRand(func() float64 {
			mu.Lock()
			defer mu.Unlock()
			draws++
			if draws <= 2 {
				return 0
			}
			return 1
		}),
	)
	stubAllBehaviors(o)

	if accepted, err := o.Inject(context.Background(), models.KindIOStress, 0); !accepted || err != nil {
		t.Fatalf("primary injection failed: %v", err)
	}

	o.mu.Lock()
	var cascaded *fault
	for kind, f := range o.registry {
		if kind != models.KindIOStress {
			cascaded = f
			break
		}
	}
	o.mu.Unlock()

	if cascaded == nil {
		t.Fatalf("expected exactly one cascaded fault")
	}
	if cascaded.duration != 20*time.Second {
		t.Fatalf("cascade duration should be ceil(max/2)=20s, got %s", cascaded.duration)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
