package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeAccepted labels injections admitted into the registry.
	OutcomeAccepted = "accepted"
	// OutcomeRejected labels injections refused by catalog or cooldown checks.
	OutcomeRejected = "rejected"
	// OutcomeSuccess labels recoveries that completed every step.
	OutcomeSuccess = "success"
	// OutcomePartial labels recoveries that finished with missing steps.
	OutcomePartial = "partial"
)

var (
	injectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "injections_total",
			Help:      "Total fault injection requests, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	recoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "recoveries_total",
			Help:      "Total completed recovery tasks, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	recoveryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "recovery_seconds",
			Help:      "Recovery task wall time in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		},
		[]string{"kind"},
	)

	cascadesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "cascades_total",
			Help:      "Secondary injections triggered by cascade evaluation.",
		},
		[]string{"kind"},
	)

	activeFaults = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "faultline",
			Name:      "active_faults",
			Help:      "Number of currently active synthetic faults.",
		},
	)
)

// Register attaches faultline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		injectionsTotal,
		recoveriesTotal,
		recoveryDurationSeconds,
		cascadesTotal,
		activeFaults,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInjection records one injection attempt.
func ObserveInjection(kind string, accepted bool) {
	outcome := OutcomeRejected
	if accepted {
		outcome = OutcomeAccepted
	}
	injectionsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRecovery records a finished recovery task.
func ObserveRecovery(kind string, success bool, duration time.Duration) {
	outcome := OutcomePartial
	if success {
		outcome = OutcomeSuccess
	}
	recoveriesTotal.WithLabelValues(kind, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	recoveryDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveCascade records one secondary injection for the given target kind.
func ObserveCascade(kind string) {
	cascadesTotal.WithLabelValues(kind).Inc()
}

// SetActiveFaults publishes the current active fault count.
func SetActiveFaults(n int) {
	activeFaults.Set(float64(n))
}
