package models

import "time"

// FaultKind identifies one of the closed set of synthetic failure categories.
type FaultKind string

const (
	KindCPUOverload FaultKind = "cpu_overload"
	KindMemoryLeak  FaultKind = "memory_leak"
	KindDiskFill    FaultKind = "disk_fill"
	KindIOStress    FaultKind = "io_stress"
)

// AllKinds returns the built-in fault kinds in stable order.
func AllKinds() []FaultKind {
	return []FaultKind{KindCPUOverload, KindMemoryLeak, KindDiskFill, KindIOStress}
}

// FaultConfig is the immutable per-kind injection policy.
type FaultConfig struct {
	ImpactFactor       float64
	RecoverySteps      int
	MetricsAffected    []string
	Cooldown           time.Duration
	MaxDuration        time.Duration
	CascadeProbability float64
}

// ActiveFault is the registry view of a single injected fault.
type ActiveFault struct {
	Kind              FaultKind
	Active            bool
	StartedAt         time.Time
	Duration          time.Duration
	RecoveryAttempted bool
	Before            Snapshot
}

// RecoveryOutcome summarises one completed (or aborted) recovery task.
type RecoveryOutcome struct {
	Kind           FaultKind
	StartedAt      time.Time
	StepsCompleted int
	Improvements   map[int]float64
	Duration       time.Duration
	Success        bool
}

// KindStats is the per-kind slice of the statistics snapshot.
type KindStats struct {
	Active            bool          `json:"active"`
	Duration          time.Duration `json:"duration_ns"`
	RecoveryAttempted bool          `json:"recovery_attempted"`
	SuccessRate       float64       `json:"success_rate"`
	Attempts          int           `json:"attempts"`
}

// Statistics is a read-only aggregation over the registry and success counters.
type Statistics struct {
	ActiveCount int                     `json:"active_fault_count"`
	HistorySize int                     `json:"history_size"`
	Kinds       map[FaultKind]KindStats `json:"kinds"`
}

// RecoveryPattern aggregates outcome history for one fault kind.
type RecoveryPattern struct {
	Kind            FaultKind `json:"kind"`
	Attempts        int       `json:"attempts"`
	Failures        int       `json:"failures"`
	FailureRatio    float64   `json:"failure_ratio"`
	MeanImprovement float64   `json:"mean_improvement"`
	// CommonAbortStep is the step count most frequently reached by failed
	// recoveries, or -1 when every attempt succeeded.
	CommonAbortStep int       `json:"common_abort_step"`
	LastSeen        time.Time `json:"last_seen"`
}
