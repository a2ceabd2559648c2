package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/faultmesh/faultline/internal/models"
)

type sequenceProvider struct {
	mu    sync.Mutex
	snaps []models.Snapshot
	idx   int
	err   error
}

func (p *sequenceProvider) Snapshot(ctx context.Context) (models.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return models.Snapshot{}, p.err
	}
	snap := p.snaps[p.idx]
	if p.idx < len(p.snaps)-1 {
		p.idx++
	}
	return snap, nil
}

type fixedScorer struct{ value float64 }

func (s fixedScorer) Score([]models.Snapshot) float64 { return s.value }

func sample(cpu, mem, disk float64) models.Snapshot {
	return models.Snapshot{CPUUsage: cpu, MemoryUsage: mem, DiskUsage: disk, Timestamp: time.Now().UTC()}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

func TestMonitorSamplesAndBoundsHistory(t *testing.T) {
	provider := &sequenceProvider{snaps: []models.Snapshot{sample(10, 20, 30)}}
	m := New(nil, provider, nil, Config{
		Interval:    2 * time.Millisecond,
		HistorySize: 5,
		Thresholds:  DefaultThresholds(),
	})

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool { return m.Health().Samples == 5 })

	if got := len(m.History()); got != 5 {
		t.Fatalf("expected history capped at 5, got %d", got)
	}
	report := m.Health()
	if report.Current.CPUUsage != 10 {
		t.Fatalf("unexpected current sample: %+v", report.Current)
	}
	if len(report.Alerts) != 0 {
		t.Fatalf("no thresholds crossed, got alerts %v", report.Alerts)
	}
}

func TestMonitorRaisesThresholdAlerts(t *testing.T) {
	provider := &sequenceProvider{snaps: []models.Snapshot{sample(95, 75, 10)}}
	m := New(nil, provider, nil, Config{
		Interval:    2 * time.Millisecond,
		HistorySize: 10,
		Thresholds:  DefaultThresholds(),
	})

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool { return m.Health().Samples >= 1 })

	alerts := m.Health().Alerts
	if len(alerts) != 2 {
		t.Fatalf("expected cpu critical and memory warning, got %v", alerts)
	}
	if alerts[0] != "cpu critical: 95.0% >= 90.0%" {
		t.Fatalf("unexpected first alert %q", alerts[0])
	}
	if alerts[1] != "memory warning: 75.0% >= 70.0%" {
		t.Fatalf("unexpected second alert %q", alerts[1])
	}
}

func TestMonitorSkipsFailedCollections(t *testing.T) {
	provider := &sequenceProvider{err: errors.New("sampler offline")}
	m := New(nil, provider, nil, Config{Interval: 2 * time.Millisecond, HistorySize: 10})

	m.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	if got := m.Health().Samples; got != 0 {
		t.Fatalf("failed reads must not enter history, got %d samples", got)
	}
}

func TestMonitorTriggersRemediation(t *testing.T) {
	provider := &sequenceProvider{snaps: []models.Snapshot{sample(50, 50, 50)}}
	m := New(nil, provider, fixedScorer{value: 0.95}, Config{
		Interval:           2 * time.Millisecond,
		HistorySize:        10,
		RemediationTrigger: 0.8,
	})

	fired := make(chan models.Snapshot, 1)
	m.SetRemediation(func(ctx context.Context, snap models.Snapshot) {
		select {
		case fired <- snap:
		default:
		}
	})

	m.Start(context.Background())
	defer m.Stop()

	select {
	case snap := <-fired:
		if snap.CPUUsage != 50 {
			t.Fatalf("remediation received wrong snapshot: %+v", snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("remediation hook never fired")
	}
}

func TestZScoreScorerNeedsMinimumSamples(t *testing.T) {
	scorer := NewZScoreScorer()
	history := []models.Snapshot{sample(10, 10, 10), sample(10, 10, 10)}
	if got := scorer.Score(history); got != 0 {
		t.Fatalf("expected 0 below minimum samples, got %g", got)
	}
}

func TestZScoreScorerFlagsSpike(t *testing.T) {
	scorer := &ZScoreScorer{MinSamples: 5, Ceiling: 4}
	history := make([]models.Snapshot, 0, 12)
	for i := 0; i < 11; i++ {
		history = append(history, sample(20, 20, 20))
	}
	history = append(history, sample(95, 95, 95))

	got := scorer.Score(history)
	if got <= 0.5 {
		t.Fatalf("expected a high probability for a utilisation spike, got %g", got)
	}
	if got > 1 {
		t.Fatalf("probability must be clamped to 1, got %g", got)
	}
}

func TestZScoreScorerStableSeriesScoresZero(t *testing.T) {
	scorer := NewZScoreScorer()
	history := make([]models.Snapshot, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, sample(30, 30, 30))
	}
	if got := scorer.Score(history); got != 0 {
		t.Fatalf("flat series must score 0, got %g", got)
	}
}

func TestProcFSProviderReadsSaneValues(t *testing.T) {
	provider, err := NewProcFSProvider("/")
	if err != nil {
		t.Skipf("procfs unavailable: %v", err)
	}

	for i := 0; i < 2; i++ {
		snap, err := provider.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snap.IsZero() {
			t.Fatalf("expected a timestamped snapshot")
		}
		for _, v := range []float64{snap.CPUUsage, snap.MemoryUsage, snap.DiskUsage} {
			if v < 0 || v > 100 {
				t.Fatalf("utilisation out of range: %+v", snap)
			}
		}
	}
}
