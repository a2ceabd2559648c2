package models

import "time"

// Metric names reported by snapshot providers.
const (
	MetricCPUUsage    = "cpu_usage"
	MetricMemoryUsage = "memory_usage"
	MetricDiskUsage   = "disk_usage"
)

// Snapshot is a point-in-time reading of monitored system metrics. The zero
// value represents a failed collection and carries no samples.
type Snapshot struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	DiskUsage   float64   `json:"disk_usage"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsZero reports whether the snapshot carries no reading.
func (s Snapshot) IsZero() bool {
	return s.Timestamp.IsZero()
}

// Metric returns the named metric value. The second return is false for an
// unknown name or an empty snapshot.
func (s Snapshot) Metric(name string) (float64, bool) {
	if s.IsZero() {
		return 0, false
	}
	switch name {
	case MetricCPUUsage:
		return s.CPUUsage, true
	case MetricMemoryUsage:
		return s.MemoryUsage, true
	case MetricDiskUsage:
		return s.DiskUsage, true
	default:
		return 0, false
	}
}
