package monitor

import (
	"math"

	"github.com/faultmesh/faultline/internal/models"
)

// ZScoreScorer estimates failure probability from the composite utilisation
// of the latest sample relative to the sampled history. It stands in for a
// heavier statistical model behind the Scorer interface.
type ZScoreScorer struct {
	// MinSamples readings are required before any score is produced.
	MinSamples int
	// Ceiling is the z-score mapped to probability 1.0.
	Ceiling float64
}

// NewZScoreScorer returns a scorer with conventional defaults.
func NewZScoreScorer() *ZScoreScorer {
	return &ZScoreScorer{MinSamples: 5, Ceiling: 4}
}

// Score returns a probability in [0,1]; 0 when history is too short.
func (s *ZScoreScorer) Score(history []models.Snapshot) float64 {
	minSamples := s.MinSamples
	if minSamples < 2 {
		minSamples = 2
	}
	if len(history) < minSamples {
		return 0
	}
	ceiling := s.Ceiling
	if ceiling <= 0 {
		ceiling = 4
	}

	composite := make([]float64, len(history))
	for i, snap := range history {
		composite[i] = (snap.CPUUsage + snap.MemoryUsage + snap.DiskUsage) / 3
	}

	mean := 0.0
	for _, v := range composite {
		mean += v
	}
	mean /= float64(len(composite))

	variance := 0.0
	for _, v := range composite {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(composite))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		stdDev = 0.01
	}

	score := (composite[len(composite)-1] - mean) / stdDev
	if score <= 0 {
		return 0
	}
	probability := score / ceiling
	if probability > 1 {
		probability = 1
	}
	return probability
}
