package patterns

import (
	"log/slog"
	"sort"
	"time"

	"github.com/faultmesh/faultline/internal/models"
)

// Miner derives per-kind recovery patterns from the bounded outcome history.
type Miner struct {
	logger *slog.Logger
}

// NewMiner constructs a Miner.
func NewMiner(logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{logger: logger}
}

type kindAggregate struct {
	attempts        int
	failures        int
	improvementSum  float64
	improvementN    int
	abortStepCounts map[int]int
	lastSeen        time.Time
}

// Mine aggregates outcomes into one pattern per kind, sorted by kind.
func (m *Miner) Mine(history []models.RecoveryOutcome) []models.RecoveryPattern {
	if len(history) == 0 {
		return nil
	}

	aggregates := make(map[models.FaultKind]*kindAggregate)
	for _, outcome := range history {
		agg, ok := aggregates[outcome.Kind]
		if !ok {
			agg = &kindAggregate{abortStepCounts: make(map[int]int)}
			aggregates[outcome.Kind] = agg
		}
		agg.attempts++
		if !outcome.Success {
			agg.failures++
			agg.abortStepCounts[outcome.StepsCompleted]++
		}
		for _, improvement := range outcome.Improvements {
			agg.improvementSum += improvement
			agg.improvementN++
		}
		seen := outcome.StartedAt.Add(outcome.Duration)
		if seen.After(agg.lastSeen) {
			agg.lastSeen = seen
		}
	}

	result := make([]models.RecoveryPattern, 0, len(aggregates))
	for kind, agg := range aggregates {
		pattern := models.RecoveryPattern{
			Kind:            kind,
			Attempts:        agg.attempts,
			Failures:        agg.failures,
			FailureRatio:    float64(agg.failures) / float64(agg.attempts),
			CommonAbortStep: commonAbortStep(agg.abortStepCounts),
			LastSeen:        agg.lastSeen,
		}
		if agg.improvementN > 0 {
			pattern.MeanImprovement = agg.improvementSum / float64(agg.improvementN)
		}
		result = append(result, pattern)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })

	m.logger.Debug("mined recovery patterns",
		slog.Int("outcomes", len(history)), slog.Int("patterns", len(result)))
	return result
}

func commonAbortStep(counts map[int]int) int {
	best := -1
	bestCount := 0
	for step, count := range counts {
		if count > bestCount || (count == bestCount && step < best) {
			best = step
			bestCount = count
		}
	}
	return best
}
