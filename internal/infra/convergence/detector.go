// Package convergence implements the ConvergenceDetector: it classifies
// the system's learning dynamics (exploring / converging / converged /
// diverging / unstable) from a rolling window of overall scores, gates
// proposed changes against that state, and maintains the checkpoint set
// used for rollback.
package convergence

import (
	"math"
	"sync"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
)

const (
	defaultVarianceWindow       = 50
	defaultTrendWindow          = 20
	defaultMinSamples           = 20
	defaultOscillationThreshold = 5
	maxWindow                   = 500
	persistEvery                = 50
)

// thresholdSource is the minimal surface the detector needs from the
// HyperparameterTuner: live convergence_threshold and rollback_sensitivity
// values. Kept narrow so the detector is testable without a real tuner.
type thresholdSource interface {
	Value(id domain.HyperparameterId) float64
}

// Config configures the Detector.
type Config struct {
	VarianceWindow       int
	TrendWindow          int
	MinSamples           int
	OscillationThreshold int
	Now                  func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		VarianceWindow:       defaultVarianceWindow,
		TrendWindow:          defaultTrendWindow,
		MinSamples:           defaultMinSamples,
		OscillationThreshold: defaultOscillationThreshold,
		Now:                  time.Now,
	}
}

// Detector is the ConvergenceDetector. It is a serialized actor: every
// public operation holds mu for its whole duration.
type Detector struct {
	mu  sync.Mutex
	cfg Config

	tuner thresholdSource
	store domain.BlobStore

	window []domain.MetricSnapshot

	state           domain.ConvergenceState
	lastConvergedAt time.Time

	checkpoints *checkpointSet

	recordsSinceFlush int
}

// New creates a Detector. tuner may be nil, in which case the built-in
// defaults for convergence_threshold and rollback_sensitivity are used.
func New(cfg Config, tuner thresholdSource, store domain.BlobStore) *Detector {
	if cfg.VarianceWindow <= 0 {
		cfg.VarianceWindow = defaultVarianceWindow
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = defaultTrendWindow
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaultMinSamples
	}
	if cfg.OscillationThreshold <= 0 {
		cfg.OscillationThreshold = defaultOscillationThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Detector{
		cfg:         cfg,
		tuner:       tuner,
		store:       store,
		state:       domain.StateUnknown,
		checkpoints: newCheckpointSet(maxCheckpoints),
	}
	d.load()
	return d
}

func (d *Detector) convergenceThreshold() float64 {
	if d.tuner != nil {
		return d.tuner.Value(domain.ConvergenceThreshold)
	}
	return domain.HyperparameterSpecs[domain.ConvergenceThreshold].Default
}

func (d *Detector) divergenceThreshold() float64 {
	if d.tuner != nil {
		return d.tuner.Value(domain.RollbackSensitivity)
	}
	return domain.HyperparameterSpecs[domain.RollbackSensitivity].Default
}

// Record appends a snapshot, trims the window to its cap, recomputes the
// state, and persists on the configured cadence.
func (d *Detector) Record(snapshot domain.MetricSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.window = append(d.window, snapshot)
	if len(d.window) > maxWindow {
		d.window = d.window[len(d.window)-maxWindow:]
	}

	analysis := d.analyzeLocked()
	d.state = analysis.State
	if d.state == domain.StateConverged {
		d.lastConvergedAt = d.cfg.Now()
	}

	d.recordsSinceFlush++
	if d.recordsSinceFlush >= persistEvery {
		d.recordsSinceFlush = 0
		d.flushLocked()
	}
}

// State returns the most recently computed convergence state.
func (d *Detector) State() domain.ConvergenceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Analyze classifies the current window. It is a pure function of the
// window contents and the live tuner thresholds.
func (d *Detector) Analyze() domain.ConvergenceAnalysis {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.analyzeLocked()
}

func (d *Detector) analyzeLocked() domain.ConvergenceAnalysis {
	analysis := domain.ConvergenceAnalysis{
		State:          domain.StateUnknown,
		SinceConverged: -1,
	}
	if !d.lastConvergedAt.IsZero() {
		analysis.SinceConverged = d.cfg.Now().Sub(d.lastConvergedAt).Seconds()
	}
	if len(d.window) < d.cfg.MinSamples {
		analysis.Recommendation = analysis.State.RecommendedAction()
		return analysis
	}

	scores := make([]float64, len(d.window))
	for i, s := range d.window {
		scores[i] = s.OverallScore()
	}

	variance := sampleVariance(tail(scores, d.cfg.VarianceWindow))
	trend := olsSlope(tail(scores, d.cfg.TrendWindow))
	oscillations := countOscillations(tail(scores, 2*d.cfg.TrendWindow))

	convThreshold := d.convergenceThreshold()
	divThreshold := d.divergenceThreshold()

	analysis.Variance = variance
	analysis.Trend = trend
	analysis.Oscillations = oscillations

	switch {
	case oscillations > d.cfg.OscillationThreshold:
		analysis.State = domain.StateUnstable
		analysis.Confidence = 0.7 + math.Min(0.3, float64(oscillations-d.cfg.OscillationThreshold)*0.05)
	case variance < convThreshold && math.Abs(trend) < 0.01:
		analysis.State = domain.StateConverged
		analysis.Confidence = math.Min(1, 0.7+10*(convThreshold-variance))
	case variance < 3*convThreshold && trend > 0:
		analysis.State = domain.StateConverging
		analysis.Confidence = 0.6 + math.Min(0.3, 5*trend)
	case trend < -divThreshold:
		analysis.State = domain.StateDiverging
		analysis.Confidence = 0.6 + math.Min(0.4, 3*math.Abs(trend))
	default:
		analysis.State = domain.StateExploring
		analysis.Confidence = 0.5
	}
	analysis.Recommendation = analysis.State.RecommendedAction()
	return analysis
}

// tail returns the last n elements of scores (or all of them).
func tail(scores []float64, n int) []float64 {
	if len(scores) <= n {
		return scores
	}
	return scores[len(scores)-n:]
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

// olsSlope is the slope of a simple ordinary-least-squares fit of value
// against index. Fewer than 5 points is not enough for a trend estimate
// and yields 0.
func olsSlope(xs []float64) float64 {
	n := len(xs)
	if n < 5 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range xs {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / den
}

// countOscillations counts sign changes in consecutive diffs, ignoring
// diffs smaller than 0.01 in magnitude.
func countOscillations(xs []float64) int {
	count := 0
	prevSign := 0
	for i := 1; i < len(xs); i++ {
		diff := xs[i] - xs[i-1]
		if math.Abs(diff) <= 0.01 {
			continue
		}
		sign := 1
		if diff < 0 {
			sign = -1
		}
		if prevSign != 0 && sign != prevSign {
			count++
		}
		prevSign = sign
	}
	return count
}

// ShouldApplyChange gates a proposed change with expected improvement
// expImprovement against the current state.
func (d *Detector) ShouldApplyChange(expImprovement, risk float64) domain.ChangeDecision {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = risk
	divThreshold := d.divergenceThreshold()

	switch d.state {
	case domain.StateConverged:
		if expImprovement > 2*divThreshold {
			return domain.ChangeDecision{Kind: domain.ChangeExperiment, Scale: 0.3}
		}
		return domain.ChangeDecision{Kind: domain.ChangeReject}
	case domain.StateUnstable:
		return domain.ChangeDecision{Kind: domain.ChangePostpone}
	case domain.StateDiverging:
		if expImprovement > 0 {
			return domain.ChangeDecision{Kind: domain.ChangeApply}
		}
		return domain.ChangeDecision{Kind: domain.ChangePostpone}
	case domain.StateExploring:
		return domain.ChangeDecision{Kind: domain.ChangeApply}
	case domain.StateConverging:
		if expImprovement > divThreshold {
			return domain.ChangeDecision{Kind: domain.ChangeExperiment, Scale: 0.5}
		}
		return domain.ChangeDecision{Kind: domain.ChangePostpone}
	default:
		return domain.ChangeDecision{Kind: domain.ChangePostpone}
	}
}

// KellyDecision sizes a change via the Kelly criterion: the edge is the
// expected improvement relative to the divergence threshold, and f* is
// the Kelly fraction for winProbability.
func (d *Detector) KellyDecision(expImprovement, winProbability float64) domain.ChangeDecision {
	d.mu.Lock()
	defer d.mu.Unlock()

	divThreshold := d.divergenceThreshold()
	edge := expImprovement / math.Max(0.01, divThreshold)
	f := (edge*winProbability - (1 - winProbability)) / math.Max(0.01, edge)

	switch {
	case f <= 0:
		return domain.ChangeDecision{Kind: domain.ChangeReject}
	case f < 0.5:
		return domain.ChangeDecision{Kind: domain.ChangeExperiment, Scale: f}
	default:
		return domain.ChangeDecision{Kind: domain.ChangeApply}
	}
}

// Flush forces a persistence write regardless of the record cadence.
func (d *Detector) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}
