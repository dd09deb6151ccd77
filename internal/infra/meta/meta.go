// Package meta implements the MetaLearningController: it decides how the
// system should learn — which optimization strategy to run, how fast to
// move, how much to explore, and when to checkpoint or roll back.
//
// Strategy performance is tracked with the same Beta-posterior shape the
// bandit uses per arm, applied at strategy granularity.
package meta

import (
	"math"
	"sync"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
	"github.com/tutu-network/govcore/internal/infra/statmath"
)

const (
	windowSize       = 100
	minExploration   = 0.05
	maxExploration   = 0.8
	explorationStep  = 0.1
	checkpointMinAge = 300 * time.Second
	baselineAlpha    = 0.1
	defaultPause     = 5 * time.Minute
)

// StrategyPerformance tracks one strategy's outcome history.
type StrategyPerformance struct {
	Successes           int64
	Failures            int64
	TotalReward         float64
	Alpha               float64
	Beta                float64
	ConsecutiveFailures int
}

func (p *StrategyPerformance) successRate() float64 {
	total := p.Successes + p.Failures
	if total == 0 {
		return 0.5
	}
	return float64(p.Successes) / float64(total)
}

// LearningRateConfig bounds the controller's learning-rate adjustments.
type LearningRateConfig struct {
	Current            float64
	Min                float64
	Max                float64
	Decay              float64
	Growth             float64
	StabilityThreshold int
}

// DefaultLearningRate returns the default learning-rate bounds.
func DefaultLearningRate() LearningRateConfig {
	return LearningRateConfig{
		Current:            0.1,
		Min:                0.001,
		Max:                0.5,
		Decay:              0.95,
		Growth:             1.1,
		StabilityThreshold: 10,
	}
}

// checkpointSource is the slice of the ConvergenceDetector the controller
// consults when deciding whether a rollback target exists.
type checkpointSource interface {
	FindBestCheckpoint() (domain.Checkpoint, bool)
	CheckpointCount() int
}

// Config configures the Controller.
type Config struct {
	LearningRate LearningRateConfig
	Exploration  float64
	Now          func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate: DefaultLearningRate(),
		Exploration:  0.3,
		Now:          time.Now,
	}
}

// Controller is the MetaLearningController. It is a serialized actor:
// every public operation holds mu for its whole duration.
type Controller struct {
	mu  sync.Mutex
	cfg Config

	rng         domain.Rng
	store       domain.BlobStore
	checkpoints checkpointSource

	strategy    domain.OptimizationStrategy
	perf        map[domain.OptimizationStrategy]*StrategyPerformance
	learning    LearningRateConfig
	exploration float64

	window   []float64
	baseline float64

	consecutiveDeclines int
	stablePeriods       int

	pausedUntil      time.Time
	lastCheckpointAt time.Time
}

// New creates a Controller starting on the Thompson strategy.
// checkpoints may be nil (rollback is then never proposed).
func New(cfg Config, rng domain.Rng, store domain.BlobStore, checkpoints checkpointSource) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LearningRate == (LearningRateConfig{}) {
		cfg.LearningRate = DefaultLearningRate()
	}
	if cfg.Exploration <= 0 {
		cfg.Exploration = 0.3
	}
	c := &Controller{
		cfg:         cfg,
		rng:         rng,
		store:       store,
		checkpoints: checkpoints,
		strategy:    domain.StrategyThompson,
		perf:        make(map[domain.OptimizationStrategy]*StrategyPerformance),
		learning:    cfg.LearningRate,
		exploration: clamp(cfg.Exploration, minExploration, maxExploration),
		baseline:    0.5,
	}
	for _, s := range domain.AllOptimizationStrategies() {
		c.perf[s] = &StrategyPerformance{Alpha: 1, Beta: 1}
	}
	c.load()
	return c
}

// Strategy returns the currently active optimization strategy.
func (c *Controller) Strategy() domain.OptimizationStrategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strategy
}

// LearningRate returns the current learning rate.
func (c *Controller) LearningRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.learning.Current
}

// Exploration returns the current exploration rate.
func (c *Controller) Exploration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exploration
}

// RecordOutcome feeds one cycle outcome into the controller's strategy
// statistics, reward window, baseline, and stability counters.
func (c *Controller) RecordOutcome(success bool, reward float64, metrics domain.MetricSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = metrics
	reward = clamp(reward, 0, 1)

	p := c.perf[c.strategy]
	if success {
		p.Successes++
		p.Alpha += reward
		p.ConsecutiveFailures = 0
	} else {
		p.Failures++
		p.Beta++
		p.ConsecutiveFailures++
	}
	p.TotalReward += reward

	c.window = append(c.window, reward)
	if len(c.window) > windowSize {
		c.window = c.window[len(c.window)-windowSize:]
	}

	if reward < 0.9*c.baseline {
		c.consecutiveDeclines++
	} else {
		c.consecutiveDeclines = 0
		c.baseline = (1-baselineAlpha)*c.baseline + baselineAlpha*reward
	}

	trend := olsSlope(c.window)
	variance := sampleVariance(c.window)
	if math.Abs(trend) < 0.01 && variance < 0.05 {
		c.stablePeriods++
	} else {
		c.stablePeriods = 0
	}
}

// Evaluate inspects the controller's state and produces the next
// MetaDecision. The rule order is significant: pause handling first,
// then rollback, then strategy/exploration/rate adjustments, then
// checkpointing.
func (c *Controller) Evaluate() domain.MetaDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	if !c.pausedUntil.IsZero() {
		if now.After(c.pausedUntil) {
			return domain.MetaDecision{Action: domain.ActionResume, Reason: "pause window elapsed", Confidence: 1}
		}
		return domain.MetaDecision{Action: domain.ActionContinue, Reason: "paused", Confidence: 1}
	}

	if c.consecutiveDeclines >= 5 && c.checkpoints != nil && c.checkpoints.CheckpointCount() > 0 {
		if cp, ok := c.checkpoints.FindBestCheckpoint(); ok {
			target := cp
			return domain.MetaDecision{
				Action:         domain.ActionRollbackTo,
				Reason:         "sustained decline, rolling back to best checkpoint",
				Confidence:     0.8,
				RollbackTarget: &target,
			}
		}
	}

	if c.perf[c.strategy].successRate() < 0.3 && c.consecutiveDeclines >= 3 {
		return domain.MetaDecision{
			Action:      domain.ActionSwitchStrategy,
			Reason:      "current strategy underperforming",
			Confidence:  0.7,
			NewStrategy: c.bestStrategyByThompsonLocked(),
		}
	}

	trend := olsSlope(c.window)
	variance := sampleVariance(c.window)

	if c.stablePeriods >= c.learning.StabilityThreshold && c.exploration > 0.1 {
		return domain.MetaDecision{Action: domain.ActionDecreaseExploration, Reason: "sustained stability", Confidence: 0.6}
	}
	if variance > 0.2 && c.exploration < 0.5 {
		return domain.MetaDecision{Action: domain.ActionIncreaseExploration, Reason: "high reward variance", Confidence: 0.6}
	}

	if trend > 0.05 {
		return domain.MetaDecision{Action: domain.ActionAdjustLearningRate, Reason: "improving trend", Confidence: 0.6, RateFactor: c.learning.Growth}
	}
	if trend < -0.05 {
		return domain.MetaDecision{Action: domain.ActionAdjustLearningRate, Reason: "declining trend", Confidence: 0.6, RateFactor: c.learning.Decay}
	}

	if recentAvg(c.window) > c.baseline && c.stablePeriods >= 5 &&
		(c.lastCheckpointAt.IsZero() || now.Sub(c.lastCheckpointAt) > checkpointMinAge) {
		return domain.MetaDecision{Action: domain.ActionCreateCheckpoint, Reason: "stable and above baseline", Confidence: 0.7}
	}

	return domain.MetaDecision{Action: domain.ActionContinue, Reason: "no adjustment needed", Confidence: 0.5}
}

// bestStrategyByThompsonLocked Thompson-samples every strategy's Beta
// posterior and returns the argmax.
func (c *Controller) bestStrategyByThompsonLocked() domain.OptimizationStrategy {
	best := c.strategy
	bestSample := math.Inf(-1)
	for _, s := range domain.AllOptimizationStrategies() {
		p := c.perf[s]
		sample := statmath.BetaSample(c.rng, p.Alpha, p.Beta)
		if sample > bestSample {
			bestSample = sample
			best = s
		}
	}
	return best
}

// Apply mutates the controller's state per decision. Invalid transitions
// (rollback with a nil target) downgrade to continue.
func (c *Controller) Apply(decision domain.MetaDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch decision.Action {
	case domain.ActionContinue:
		// no-op, idempotent
	case domain.ActionSwitchStrategy:
		c.strategy = decision.NewStrategy
		c.perf[c.strategy].ConsecutiveFailures = 0
		c.consecutiveDeclines = 0
	case domain.ActionAdjustLearningRate:
		factor := decision.RateFactor
		if factor <= 0 {
			factor = 1
		}
		c.learning.Current = clamp(c.learning.Current*factor, c.learning.Min, c.learning.Max)
	case domain.ActionIncreaseExploration:
		c.exploration = clamp(c.exploration+explorationStep, minExploration, maxExploration)
	case domain.ActionDecreaseExploration:
		c.exploration = clamp(c.exploration-explorationStep, minExploration, maxExploration)
	case domain.ActionRollbackTo:
		if decision.RollbackTarget == nil {
			return
		}
		c.strategy = decision.RollbackTarget.Strategy
		c.learning.Current = clamp(decision.RollbackTarget.LearningRate, c.learning.Min, c.learning.Max)
		c.consecutiveDeclines = 0
		c.stablePeriods = 0
	case domain.ActionCreateCheckpoint:
		c.lastCheckpointAt = c.cfg.Now()
		c.stablePeriods = 0
	case domain.ActionPause:
		d := decision.PauseDuration
		if d <= 0 {
			d = defaultPause
		}
		c.pausedUntil = c.cfg.Now().Add(d)
	case domain.ActionResume:
		c.pausedUntil = time.Time{}
	}
	c.flushLocked()
}

// Snapshot exposes the controller's current tuning posture for
// introspection and checkpointing.
type Snapshot struct {
	Strategy            domain.OptimizationStrategy
	LearningRate        float64
	Exploration         float64
	Baseline            float64
	ConsecutiveDeclines int
	StablePeriods       int
	Paused              bool
}

// State returns a point-in-time snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Strategy:            c.strategy,
		LearningRate:        c.learning.Current,
		Exploration:         c.exploration,
		Baseline:            c.baseline,
		ConsecutiveDeclines: c.consecutiveDeclines,
		StablePeriods:       c.stablePeriods,
		Paused:              !c.pausedUntil.IsZero(),
	}
}

func recentAvg(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := recentAvg(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
