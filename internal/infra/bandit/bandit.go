// Package bandit implements the Contextual Multi-Armed Bandit: per
// (context, arm) and per-arm-global Beta posteriors selecting among
// model arms, with UCB1 as a second selection mode.
package bandit

import (
	"math"
	"sync"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
	"github.com/tutu-network/govcore/internal/infra/statmath"
)

// Arm describes one selectable model arm.
type Arm struct {
	ID        string
	Local     bool
	LatencyMs float64
	Quality   float64
}

// armStats holds the Beta posterior and UCB inputs for one arm, either
// within a single context bucket or in the global pool.
type armStats struct {
	successes   float64 // accumulated fractional rewards
	failures    float64 // accumulated fractional 1-reward
	totalReward float64
	pullCount   int64
	lastPulled  time.Time
}

func (a *armStats) record(reward float64, now time.Time) {
	a.successes += reward
	a.failures += 1 - reward
	a.totalReward += reward
	a.pullCount++
	a.lastPulled = now
}

func (a *armStats) betaSample(rng domain.Rng) float64 {
	return statmath.BetaSample(rng, a.successes+1, a.failures+1)
}

func (a *armStats) mean() float64 {
	if a.pullCount == 0 {
		return 0
	}
	return a.totalReward / float64(a.pullCount)
}

func (a *armStats) ucbScore(totalPulls int64, bonus float64) float64 {
	if a.pullCount == 0 {
		return math.Inf(1)
	}
	return a.mean() + bonus*math.Sqrt(math.Log(float64(totalPulls+1))/float64(a.pullCount))
}

// Config configures the Bandit.
type Config struct {
	MinPullsForContext int64
	PersistEvery       int64
	Now                func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{MinPullsForContext: 5, PersistEvery: 50, Now: time.Now}
}

// Bandit is the Contextual Multi-Armed Bandit. It is a serialized
// actor: every public operation holds mu for its whole duration.
type Bandit struct {
	mu  sync.Mutex
	cfg Config

	rng    domain.Rng
	store  domain.BlobStore
	tuner  explorationBonusSource
	arms   map[string]Arm   // arm id -> arm, insertion order tracked separately
	order  []string         // insertion order, for tie-breaking
	global map[string]*armStats
	ctx    map[string]map[string]*armStats // context hash -> arm id -> stats
	seen   *contextFilter                  // fast "have we pulled this context" pre-check

	totalPulls int64
}

// explorationBonusSource is the minimal surface the Bandit needs from
// the HyperparameterTuner: the current bandit_exploration_bonus value.
// Kept as a narrow interface rather than an import of the tuner package
// so the two components stay independently testable.
type explorationBonusSource interface {
	Value(id domain.HyperparameterId) float64
}

// New creates a Bandit. tuner may be nil, in which case SelectUCB uses
// the built-in default for bandit_exploration_bonus.
func New(cfg Config, rng domain.Rng, store domain.BlobStore, tuner explorationBonusSource) *Bandit {
	if cfg.MinPullsForContext <= 0 {
		cfg.MinPullsForContext = 5
	}
	if cfg.PersistEvery <= 0 {
		cfg.PersistEvery = 50
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Bandit{
		cfg:    cfg,
		rng:    rng,
		store:  store,
		tuner:  tuner,
		arms:   make(map[string]Arm),
		global: make(map[string]*armStats),
		ctx:    make(map[string]map[string]*armStats),
		seen:   newContextFilter(1000, 0.01),
	}
	b.load()
	return b
}

// RegisterArms adds a batch of arms, ignoring ones already registered.
func (b *Bandit) RegisterArms(arms []Arm) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range arms {
		b.addArmLocked(a)
	}
}

// AddArm registers a single arm.
func (b *Bandit) AddArm(a Arm) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addArmLocked(a)
}

func (b *Bandit) addArmLocked(a Arm) {
	if _, exists := b.arms[a.ID]; exists {
		b.arms[a.ID] = a // refresh latency/quality, keep insertion order
		return
	}
	b.arms[a.ID] = a
	b.order = append(b.order, a.ID)
	if _, ok := b.global[a.ID]; !ok {
		b.global[a.ID] = &armStats{}
	}
}

// RemoveArm drops an arm and its accumulated statistics.
func (b *Bandit) RemoveArm(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.arms, id)
	delete(b.global, id)
	for _, m := range b.ctx {
		delete(m, id)
	}
	for i, o := range b.order {
		if o == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// selectLocked is the shared structure behind SelectThompson/SelectUCB: a
// scoring function over (contextStats-or-nil, globalStats) produces a
// raw score, which is then adjusted and compared. Ties go to the first
// in insertion order: the loop below walks the ordered b.order slice and
// only a strictly higher score replaces the current best.
func (b *Bandit) selectLocked(ctxHash string, ctx domain.Context, score func(ctxStats, global *armStats) float64) (Arm, bool) {
	if len(b.order) == 0 {
		return Arm{}, false
	}
	var ctxBucket map[string]*armStats
	if b.seen.MaybeSeen(ctxHash) {
		ctxBucket = b.ctx[ctxHash]
	}

	bestIdx := -1
	bestScore := math.Inf(-1)
	for i, id := range b.order {
		arm := b.arms[id]
		global := b.global[id]
		var cstat *armStats
		if ctxBucket != nil {
			cstat = ctxBucket[id]
		}
		s := score(cstat, global)
		s *= adjustmentMultiplier(arm, ctx)
		if s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Arm{}, false
	}
	return b.arms[b.order[bestIdx]], true
}

func adjustmentMultiplier(arm Arm, ctx domain.Context) float64 {
	m := 1.0
	if ctx.Urgency == domain.UrgencyCritical && arm.Local {
		m *= 1.2
	}
	if ctx.Urgency == domain.UrgencyCritical && arm.LatencyMs > 5000 {
		m *= 0.7
	}
	if ctx.Complexity == domain.ComplexityVeryComplex && arm.Quality > 0.8 {
		m *= 1.1
	}
	return m
}

// SelectThompson picks an arm via Thompson sampling, blending
// context-specific and global posteriors once a context/arm pair has
// enough pulls.
func (b *Bandit) SelectThompson(ctx domain.Context) (Arm, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hash := ctx.Hash()
	return b.selectLocked(hash, ctx, func(cstat, global *armStats) float64 {
		globalSample := global.betaSample(b.rng)
		if cstat != nil && cstat.pullCount >= b.cfg.MinPullsForContext {
			return 0.7*cstat.betaSample(b.rng) + 0.3*globalSample
		}
		return globalSample
	})
}

// SelectUCB picks an arm via UCB1, using the tuner-sourced exploration
// bonus (or the hyperparameter's built-in default if no tuner is wired).
func (b *Bandit) SelectUCB(ctx domain.Context) (Arm, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bonus := domain.HyperparameterSpecs[domain.BanditExplorationBonus].Default
	if b.tuner != nil {
		bonus = b.tuner.Value(domain.BanditExplorationBonus)
	}
	hash := ctx.Hash()
	return b.selectLocked(hash, ctx, func(cstat, global *armStats) float64 {
		globalScore := global.ucbScore(b.totalPulls, bonus)
		if cstat != nil && cstat.pullCount >= b.cfg.MinPullsForContext {
			ctxScore := cstat.ucbScore(b.totalPulls, bonus)
			return 0.7*ctxScore + 0.3*globalScore
		}
		return globalScore
	})
}

// RecordReward clamps r to [0,1] and updates both the context-scoped and
// global statistics for model.
func (b *Bandit) RecordReward(model string, ctx domain.Context, r float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r = clamp(r, 0, 1)
	now := b.cfg.Now()

	global, ok := b.global[model]
	if !ok {
		return
	}
	global.record(r, now)

	hash := ctx.Hash()
	bucket, ok := b.ctx[hash]
	if !ok {
		bucket = make(map[string]*armStats)
		b.ctx[hash] = bucket
	}
	cstat, ok := bucket[model]
	if !ok {
		cstat = &armStats{}
		bucket[model] = cstat
	}
	cstat.record(r, now)
	b.seen.Add(hash)

	b.totalPulls++
	if b.totalPulls%b.cfg.PersistEvery == 0 {
		b.flushLocked()
	}
}

// SelectionProbabilities Monte-Carlo estimates, for each registered arm,
// the probability it wins a Thompson draw in this context.
func (b *Bandit) SelectionProbabilities(ctx domain.Context, samples int) map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if samples <= 0 {
		samples = 1000
	}
	wins := make(map[string]int, len(b.order))
	hash := ctx.Hash()
	ctxBucket := b.ctx[hash]
	for i := 0; i < samples; i++ {
		bestID := ""
		bestScore := math.Inf(-1)
		for _, id := range b.order {
			global := b.global[id]
			var cstat *armStats
			if ctxBucket != nil {
				cstat = ctxBucket[id]
			}
			globalSample := global.betaSample(b.rng)
			var s float64
			if cstat != nil && cstat.pullCount >= b.cfg.MinPullsForContext {
				s = 0.7*cstat.betaSample(b.rng) + 0.3*globalSample
			} else {
				s = globalSample
			}
			s *= adjustmentMultiplier(b.arms[id], ctx)
			if s > bestScore {
				bestScore = s
				bestID = id
			}
		}
		if bestID != "" {
			wins[bestID]++
		}
	}
	out := make(map[string]float64, len(wins))
	for id, w := range wins {
		out[id] = float64(w) / float64(samples)
	}
	return out
}

// ComputeReward implements the reward helper shared across callers that
// report latency/rating/regeneration/edit/error outcomes.
func ComputeReward(latencyMs float64, rating *float64, regenerated, edited, errored bool) float64 {
	if errored {
		return 0
	}
	r := 0.5
	r += 0.2 * math.Max(0, 1-latencyMs/10000)
	if rating != nil {
		r += 0.4 * (*rating - 0.5)
	}
	if regenerated {
		r -= 0.2
	}
	if edited {
		r -= 0.1
	}
	return clamp(r, 0, 1)
}

// ArmSummary exposes one arm's aggregate statistics for inspection.
type ArmSummary struct {
	ID        string
	PullCount int64
	MeanQ     float64
}

// GlobalStats returns a summary for every registered arm in insertion
// order.
func (b *Bandit) GlobalStats() []ArmSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ArmSummary, 0, len(b.order))
	for _, id := range b.order {
		g := b.global[id]
		out = append(out, ArmSummary{ID: id, PullCount: g.pullCount, MeanQ: g.mean()})
	}
	return out
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
