package meta

import (
	"encoding/json"
	"log"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
)

const stateKey = "meta.state"
const stateVersion byte = 1

type wirePerf struct {
	Successes           int64   `json:"successes"`
	Failures            int64   `json:"failures"`
	TotalReward         float64 `json:"total_reward"`
	Alpha               float64 `json:"alpha"`
	Beta                float64 `json:"beta"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

type wireState struct {
	Strategy            int                 `json:"strategy"`
	Perf                map[string]wirePerf `json:"perf"`
	LearningRate        float64             `json:"learning_rate"`
	Exploration         float64             `json:"exploration"`
	Window              []float64           `json:"window"`
	Baseline            float64             `json:"baseline"`
	ConsecutiveDeclines int                 `json:"consecutive_declines"`
	StablePeriods       int                 `json:"stable_periods"`
	PausedUntil         int64               `json:"paused_until"`
	LastCheckpointAt    int64               `json:"last_checkpoint_at"`
}

// flushLocked serializes the controller's state. Must be called with mu
// held.
func (c *Controller) flushLocked() error {
	if c.store == nil {
		return nil
	}
	ws := wireState{
		Strategy:            int(c.strategy),
		Perf:                make(map[string]wirePerf, len(c.perf)),
		LearningRate:        c.learning.Current,
		Exploration:         c.exploration,
		Window:              append([]float64(nil), c.window...),
		Baseline:            c.baseline,
		ConsecutiveDeclines: c.consecutiveDeclines,
		StablePeriods:       c.stablePeriods,
	}
	for s, p := range c.perf {
		ws.Perf[s.String()] = wirePerf{
			Successes:           p.Successes,
			Failures:            p.Failures,
			TotalReward:         p.TotalReward,
			Alpha:               p.Alpha,
			Beta:                p.Beta,
			ConsecutiveFailures: p.ConsecutiveFailures,
		}
	}
	if !c.pausedUntil.IsZero() {
		ws.PausedUntil = c.pausedUntil.UnixNano()
	}
	if !c.lastCheckpointAt.IsZero() {
		ws.LastCheckpointAt = c.lastCheckpointAt.UnixNano()
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	blob := make([]byte, 0, len(payload)+1)
	blob = append(blob, stateVersion)
	blob = append(blob, payload...)
	return c.store.Put(stateKey, blob)
}

// Flush forces a persistence write.
func (c *Controller) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// load restores persisted state. Corruption or an unknown version is
// logged once and the controller keeps its fresh defaults.
func (c *Controller) load() {
	if c.store == nil {
		return
	}
	blob, ok, err := c.store.Get(stateKey)
	if err != nil || !ok || len(blob) == 0 {
		return
	}
	if blob[0] != stateVersion {
		log.Printf("meta: persisted state has unknown version %d, resetting to defaults", blob[0])
		return
	}
	var ws wireState
	if err := json.Unmarshal(blob[1:], &ws); err != nil {
		log.Printf("meta: persisted state is corrupt (%v), resetting to defaults", err)
		return
	}
	byName := make(map[string]domain.OptimizationStrategy)
	for _, s := range domain.AllOptimizationStrategies() {
		byName[s.String()] = s
	}
	c.strategy = domain.OptimizationStrategy(ws.Strategy)
	if _, ok := c.perf[c.strategy]; !ok {
		c.strategy = domain.StrategyThompson
	}
	for name, wp := range ws.Perf {
		s, ok := byName[name]
		if !ok {
			continue
		}
		p := c.perf[s]
		p.Successes = wp.Successes
		p.Failures = wp.Failures
		p.TotalReward = wp.TotalReward
		p.Alpha = wp.Alpha
		p.Beta = wp.Beta
		p.ConsecutiveFailures = wp.ConsecutiveFailures
		if p.Alpha < 1 {
			p.Alpha = 1
		}
		if p.Beta < 1 {
			p.Beta = 1
		}
	}
	c.learning.Current = clamp(ws.LearningRate, c.learning.Min, c.learning.Max)
	c.exploration = clamp(ws.Exploration, minExploration, maxExploration)
	c.window = ws.Window
	c.baseline = ws.Baseline
	c.consecutiveDeclines = ws.ConsecutiveDeclines
	c.stablePeriods = ws.StablePeriods
	if ws.PausedUntil != 0 {
		c.pausedUntil = time.Unix(0, ws.PausedUntil)
	}
	if ws.LastCheckpointAt != 0 {
		c.lastCheckpointAt = time.Unix(0, ws.LastCheckpointAt)
	}
}
