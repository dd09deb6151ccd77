// Package tuner implements the HyperparameterTuner: one Beta posterior
// per tunable knob, Thompson/UCB sampling, Welford running statistics,
// and normalization-group renormalization.
package tuner

import (
	"math"
	"sync"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
	"github.com/tutu-network/govcore/internal/infra/statmath"
)

// OutcomeRecord is one tested-value/outcome observation in a
// hyperparameter's bounded history.
type OutcomeRecord struct {
	Tested    float64
	Outcome   float64
	Timestamp time.Time
	Context   string
}

const maxHistory = 100

// AdaptiveHyperparameter is the per-id posterior and running statistics
// the Tuner maintains.
type AdaptiveHyperparameter struct {
	ID      domain.HyperparameterId
	Current float64

	Alpha float64
	Beta  float64

	N    int64
	Mean float64
	M2   float64

	History []OutcomeRecord

	ConsecutiveStableUpdates int
	LastUpdated              time.Time
}

func newAdaptiveHyperparameter(id domain.HyperparameterId) *AdaptiveHyperparameter {
	spec := domain.HyperparameterSpecs[id]
	return &AdaptiveHyperparameter{
		ID:      id,
		Current: spec.Default,
		Alpha:   1,
		Beta:    1,
	}
}

// cv returns the coefficient of variation (stdev / |mean|). Below 5
// samples (or a zero mean, which would divide by zero) it falls back to
// 0.1 rather than a real estimate.
func (h *AdaptiveHyperparameter) cv() float64 {
	if h.N < 5 || h.Mean == 0 {
		return 0.1
	}
	variance := 0.0
	if h.N > 1 {
		variance = h.M2 / float64(h.N-1)
	}
	return math.Sqrt(variance) / math.Abs(h.Mean)
}

// Config configures the HyperparameterTuner.
type Config struct {
	Mode domain.TunerMode
	Now  func() time.Time
}

// DefaultConfig returns production defaults (balanced mode).
func DefaultConfig() Config {
	return Config{Mode: domain.ModeBalanced, Now: time.Now}
}

// Tuner is the HyperparameterTuner. It is a serialized actor: every
// public operation acquires the single mutex for its whole duration.
type Tuner struct {
	mu  sync.Mutex
	cfg Config

	rng   domain.Rng
	store domain.BlobStore

	params map[domain.HyperparameterId]*AdaptiveHyperparameter

	totalTrials int64
}

// New creates a Tuner with one AdaptiveHyperparameter per closed-enum id,
// initialized to its declared default, and attempts to load persisted state
// from store (persistence key "tuner.state"). A missing or corrupt blob
// is not an error — the tuner simply starts from defaults.
func New(cfg Config, rng domain.Rng, store domain.BlobStore) *Tuner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Tuner{
		cfg:    cfg,
		rng:    rng,
		store:  store,
		params: make(map[domain.HyperparameterId]*AdaptiveHyperparameter),
	}
	for _, id := range domain.AllHyperparameterIds() {
		t.params[id] = newAdaptiveHyperparameter(id)
	}
	t.load()
	return t
}

// Value returns the id's current best-estimate value. Unknown ids (not
// possible with the closed enum, but defensive) return the declared
// default.
func (t *Tuner) Value(id domain.HyperparameterId) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.params[id]
	if !ok {
		return domain.HyperparameterSpecs[id].Default
	}
	return p.Current
}

// Sample draws a Thompson sample from id's Beta posterior, mapped
// linearly into [lo, hi] and mode-adjusted.
func (t *Tuner) Sample(id domain.HyperparameterId) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleLocked(id)
}

func (t *Tuner) sampleLocked(id domain.HyperparameterId) float64 {
	p, ok := t.params[id]
	if !ok {
		return domain.HyperparameterSpecs[id].Default
	}
	spec := domain.HyperparameterSpecs[id]
	raw := statmath.BetaSample(t.rng, p.Alpha, p.Beta)
	sample := clamp(spec.Lo+raw*(spec.Hi-spec.Lo), spec.Lo, spec.Hi)

	switch t.cfg.Mode {
	case domain.ModeConservative:
		return clamp(0.7*p.Current+0.3*sample, spec.Lo, spec.Hi)
	case domain.ModeConvergent:
		return t.sampleUCBLocked(id, 0.5)
	default: // aggressive, balanced
		return sample
	}
}

// SampleUCB returns an Upper-Confidence-Bound projection of id: requires
// n >= 1, returns current + bonus·√(ln(N+1)/n) projected into [lo, hi].
func (t *Tuner) SampleUCB(id domain.HyperparameterId, bonus float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleUCBLocked(id, bonus)
}

func (t *Tuner) sampleUCBLocked(id domain.HyperparameterId, bonus float64) float64 {
	p, ok := t.params[id]
	spec := domain.HyperparameterSpecs[id]
	if !ok || p.N < 1 {
		if ok {
			return p.Current
		}
		return spec.Default
	}
	ucb := p.Current + bonus*math.Sqrt(math.Log(float64(t.totalTrials+1))/float64(p.N))
	return clamp(ucb, spec.Lo, spec.Hi)
}

// RecordOutcome records that tested was tried for id and produced
// outcome (clamped to [0,1]). Unknown context is passed as "".
func (t *Tuner) RecordOutcome(id domain.HyperparameterId, tested, outcome float64, context string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.params[id]
	if !ok {
		return
	}
	spec := domain.HyperparameterSpecs[id]
	outcome = clamp(outcome, 0, 1)

	p.Alpha += outcome
	p.Beta += 1 - outcome
	if p.Alpha < 1 {
		p.Alpha = 1
	}
	if p.Beta < 1 {
		p.Beta = 1
	}

	// Welford update of mean/M2 over tested values.
	p.N++
	delta := tested - p.Mean
	p.Mean += delta / float64(p.N)
	delta2 := tested - p.Mean
	p.M2 += delta * delta2

	now := t.cfg.Now()
	p.History = append(p.History, OutcomeRecord{Tested: tested, Outcome: outcome, Timestamp: now, Context: context})
	if len(p.History) > maxHistory {
		p.History = p.History[len(p.History)-maxHistory:]
	}

	if outcome > 0.5 {
		cv := p.cv()
		alphaAdp := clamp(0.1+cv*0.3, 0.01, 0.5)
		p.Current = clamp((1-alphaAdp)*p.Current+alphaAdp*tested, spec.Lo, spec.Hi)
	}

	stableMove := math.Abs(tested-p.Current) / math.Max(p.Current, 0.001)
	if stableMove < 0.05 && outcome > 0.6 {
		p.ConsecutiveStableUpdates++
	} else {
		p.ConsecutiveStableUpdates = 0
	}

	p.LastUpdated = now

	if group := domain.GroupOf(id); group != nil {
		t.renormalizeGroupLocked(group)
	}

	t.totalTrials++
	if t.totalTrials%10 == 0 {
		t.flushLocked()
	}
}

// renormalizeGroupLocked rescales group members so their current values
// sum to 1, each re-clamped to its own range.
func (t *Tuner) renormalizeGroupLocked(group domain.NormalizationGroup) {
	sum := 0.0
	for _, id := range group {
		sum += t.params[id].Current
	}
	if sum <= 0 {
		// Degenerate: fall back to an even split across the group.
		even := 1.0 / float64(len(group))
		for _, id := range group {
			spec := domain.HyperparameterSpecs[id]
			t.params[id].Current = clamp(even, spec.Lo, spec.Hi)
		}
		return
	}
	for _, id := range group {
		spec := domain.HyperparameterSpecs[id]
		t.params[id].Current = clamp(t.params[id].Current/sum, spec.Lo, spec.Hi)
	}
}

// Confidence returns id's [0,1] self-assessment combining sample count,
// variance, and recency.
func (t *Tuner) Confidence(id domain.HyperparameterId) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.params[id]
	if !ok {
		return 0
	}
	sampleTerm := 0.4 * math.Min(1, float64(p.N)/50)
	cvTerm := 0.4 * math.Max(0, 1-p.cv())
	ageTerm := 0.0
	if !p.LastUpdated.IsZero() {
		age := t.cfg.Now().Sub(p.LastUpdated)
		ageTerm = 0.2 * math.Max(0, 1-age.Seconds()/(7*24*3600))
	} else {
		ageTerm = 0.2
	}
	return sampleTerm + cvTerm + ageTerm
}

// IsConverged reports whether id meets the convergence bar: n >= 20,
// CV < 0.1, and consecutive_stable_updates >= 10.
func (t *Tuner) IsConverged(id domain.HyperparameterId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.params[id]
	if !ok {
		return false
	}
	return p.N >= 20 && p.cv() < 0.1 && p.ConsecutiveStableUpdates >= 10
}

// SystemConvergence returns the fraction of ids that are converged.
func (t *Tuner) SystemConvergence() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	converged := 0
	for id, p := range t.params {
		_ = id
		if p.N >= 20 && p.cv() < 0.1 && p.ConsecutiveStableUpdates >= 10 {
			converged++
		}
	}
	return float64(converged) / float64(len(t.params))
}

// CurrentValues returns a copy of every id's current value, used by the
// orchestrator when snapshotting parameters into a checkpoint.
func (t *Tuner) CurrentValues() map[domain.HyperparameterId]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[domain.HyperparameterId]float64, len(t.params))
	for id, p := range t.params {
		out[id] = p.Current
	}
	return out
}

// RestoreValues overwrites current values from a checkpoint's parameter
// snapshot, re-clamping each to its range and renormalizing any touched
// groups. Posteriors and history are intentionally left intact: a
// rollback rewinds the operating point, not the learning.
func (t *Tuner) RestoreValues(values map[domain.HyperparameterId]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	touchedGroups := make(map[int]bool)
	for id, v := range values {
		p, ok := t.params[id]
		if !ok {
			continue
		}
		spec := domain.HyperparameterSpecs[id]
		p.Current = clamp(v, spec.Lo, spec.Hi)
		for gi, g := range domain.NormalizationGroups {
			for _, member := range g {
				if member == id {
					touchedGroups[gi] = true
				}
			}
		}
	}
	for gi := range touchedGroups {
		t.renormalizeGroupLocked(domain.NormalizationGroups[gi])
	}
	t.flushLocked()
}

// Flush forces a persistence write regardless of the trial cadence.
func (t *Tuner) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
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
