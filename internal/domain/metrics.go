package domain

import "time"

// MetricSnapshot is one point-in-time system health reading the
// ConvergenceDetector ingests.
type MetricSnapshot struct {
	CompositeQuality   float64
	Latency            float64
	UserSatisfaction   float64
	ErrorRate          float64
	ResourceEfficiency float64
	Timestamp          time.Time
}

// OverallScore combines the snapshot's dimensions into a single [0,1]
// score: 0.40·quality + 0.30·satisfaction + 0.20·efficiency + 0.10·(1−error_rate).
func (m MetricSnapshot) OverallScore() float64 {
	return 0.40*m.CompositeQuality +
		0.30*m.UserSatisfaction +
		0.20*m.ResourceEfficiency +
		0.10*(1-m.ErrorRate)
}
