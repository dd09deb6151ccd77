package domain

import "time"

// Checkpoint is a snapshot of strategy/learning-rate/parameters and
// associated performance, eligible for rollback.
type Checkpoint struct {
	ID                 string
	Timestamp          time.Time
	Strategy           OptimizationStrategy
	LearningRate       float64
	PerformanceMetrics MetricSnapshot
	ParameterSnapshot  map[HyperparameterId]float64
	Reason             string

	// Score is the checkpoint's ranking key for top-N retention
	// (find_best_checkpoint); derived from PerformanceMetrics.OverallScore()
	// at creation time so ranking survives even if metrics fields change
	// meaning later.
	Score float64
}
