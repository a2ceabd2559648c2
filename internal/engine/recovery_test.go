package engine

import (
	"context"
	"testing"
	"time"

	"github.com/faultmesh/faultline/internal/models"
)

func snapshotAt(cpu, mem, disk float64) models.Snapshot {
	return models.Snapshot{
		CPUUsage:    cpu,
		MemoryUsage: mem,
		DiskUsage:   disk,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStepImprovementAveragesAffectedMetrics(t *testing.T) {
	before := snapshotAt(80, 60, 40)
	current := snapshotAt(40, 30, 40)

	got := stepImprovement([]string{models.MetricCPUUsage, models.MetricMemoryUsage}, before, current)
	if got != 0.5 {
		t.Fatalf("expected mean improvement 0.5, got %g", got)
	}
}

func TestStepImprovementIgnoresRegressedMetrics(t *testing.T) {
	before := snapshotAt(50, 60, 40)
	current := snapshotAt(25, 90, 40)

	// memory regressed, so only the cpu sample counts.
	got := stepImprovement([]string{models.MetricCPUUsage, models.MetricMemoryUsage}, before, current)
	if got != 0.5 {
		t.Fatalf("expected 0.5 from the single cpu sample, got %g", got)
	}
}

func TestStepImprovementEmptySnapshotsYieldZero(t *testing.T) {
	if got := stepImprovement([]string{models.MetricCPUUsage}, models.Snapshot{}, snapshotAt(10, 10, 10)); got != 0 {
		t.Fatalf("empty before snapshot must yield 0, got %g", got)
	}
	if got := stepImprovement([]string{models.MetricCPUUsage}, snapshotAt(10, 10, 10), models.Snapshot{}); got != 0 {
		t.Fatalf("empty current snapshot must yield 0, got %g", got)
	}
	if got := stepImprovement(nil, snapshotAt(10, 10, 10), snapshotAt(5, 5, 5)); got != 0 {
		t.Fatalf("no affected metrics must yield 0, got %g", got)
	}
}

func TestBehaviorForCoversBuiltinKinds(t *testing.T) {
	ctx := context.Background()
	for _, kind := range models.AllKinds() {
		b := behaviorFor(kind)
		if b == nil {
			t.Fatalf("kind %s has no behavior", kind)
		}
		if !b.Recover(ctx, 0) {
			t.Fatalf("kind %s: first remediation step should report done", kind)
		}
	}

	if _, ok := behaviorFor("custom_kind").(noopBehavior); !ok {
		t.Fatalf("unlisted kinds must fall back to the no-op behavior")
	}
}

func TestBehaviorRecoverHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, kind := range models.AllKinds() {
		if behaviorFor(kind).Recover(ctx, 0) {
			t.Fatalf("kind %s: remediation must fail once the context is gone", kind)
		}
	}
}
