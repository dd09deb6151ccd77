package domain

// HyperparameterId is the closed enumeration of tunable knobs the
// HyperparameterTuner maintains a Beta posterior for. Each id carries an
// immutable default value and a valid closed range [Lo, Hi].
type HyperparameterId int

const (
	// GovernanceCycleSeconds is the tunable baseline cycle interval. The
	// scheduler does not read it: its starting baseline comes from
	// scheduler.Config.BaselineSeconds.
	GovernanceCycleSeconds HyperparameterId = iota

	// SchedulerPatternLearningRate is the tunable EMA alpha for hourly
	// activity patterns. The scheduler does not read it: pattern updates
	// use scheduler.Config.PatternLearningRate.
	SchedulerPatternLearningRate
	// MetaBaselineAlpha is the tunable EMA alpha for a reward baseline.
	// The MetaController does not read it: its baseline uses the fixed
	// baselineAlpha constant (0.1) in package meta.
	MetaBaselineAlpha

	// Quality composite weights (normalization group: sum to 1).
	QualityWeightSuccess
	QualityWeightSpeed
	QualityWeightUserRating
	QualityWeightResourceEfficiency

	// Selection scoring weights (normalization group: sum to 1).
	SelectionWeightLatency
	SelectionWeightQuality
	SelectionWeightCost
	SelectionWeightReliability
	SelectionWeightRecency

	// TunerExplorationRate is a tuner-managed exploration knob, distinct
	// from the MetaController's own internal exploration_rate counter
	// which is adjusted directly by the meta controller, not
	// sampled from a Beta posterior.
	TunerExplorationRate

	// BanditExplorationBonus feeds the UCB exploration bonus constant `c`
	// used by Bandit.select_ucb.
	BanditExplorationBonus

	// Memory-tier thresholds (gigabytes) for classifying a ResourceTier.
	// ResourceTierOf takes its thresholds as arguments; no caller in this
	// module passes these tuned values to it.
	MemoryTierLowGB
	MemoryTierMediumGB

	// ConvergenceThreshold is the variance bound below which the detector
	// may declare convergence.
	ConvergenceThreshold
	// RollbackSensitivity is the trend threshold below which the detector
	// declares divergence.
	RollbackSensitivity

	numHyperparameterIds
)

// String returns a stable, lowercase identifier for the hyperparameter id.
func (id HyperparameterId) String() string {
	if s, ok := hyperparameterNames[id]; ok {
		return s
	}
	return "unknown"
}

var hyperparameterNames = map[HyperparameterId]string{
	GovernanceCycleSeconds:           "governance_cycle_seconds",
	SchedulerPatternLearningRate:     "scheduler_pattern_learning_rate",
	MetaBaselineAlpha:                "meta_baseline_alpha",
	QualityWeightSuccess:             "quality_weight_success",
	QualityWeightSpeed:               "quality_weight_speed",
	QualityWeightUserRating:          "quality_weight_user_rating",
	QualityWeightResourceEfficiency:  "quality_weight_resource_efficiency",
	SelectionWeightLatency:           "selection_weight_latency",
	SelectionWeightQuality:           "selection_weight_quality",
	SelectionWeightCost:              "selection_weight_cost",
	SelectionWeightReliability:       "selection_weight_reliability",
	SelectionWeightRecency:           "selection_weight_recency",
	TunerExplorationRate:             "exploration_rate",
	BanditExplorationBonus:           "bandit_exploration_bonus",
	MemoryTierLowGB:                  "memory_tier_low_gb",
	MemoryTierMediumGB:               "memory_tier_medium_gb",
	ConvergenceThreshold:             "convergence_threshold",
	RollbackSensitivity:              "rollback_sensitivity",
}

// HyperparameterIdFromString resolves a stable name (as produced by
// String) back to its id.
func HyperparameterIdFromString(name string) (HyperparameterId, bool) {
	for id, s := range hyperparameterNames {
		if s == name {
			return id, true
		}
	}
	return 0, false
}

// HyperparameterSpec describes the immutable default and valid range for
// one hyperparameter id.
type HyperparameterSpec struct {
	Default float64
	Lo      float64
	Hi      float64
}

// HyperparameterSpecs is the single source of truth for every tunable
// knob's default value and closed range.
var HyperparameterSpecs = map[HyperparameterId]HyperparameterSpec{
	GovernanceCycleSeconds:       {Default: 300, Lo: 60, Hi: 900},
	SchedulerPatternLearningRate: {Default: 0.1, Lo: 0.01, Hi: 0.5},
	MetaBaselineAlpha:            {Default: 0.1, Lo: 0.01, Hi: 0.5},

	QualityWeightSuccess:            {Default: 0.40, Lo: 0, Hi: 1},
	QualityWeightSpeed:              {Default: 0.20, Lo: 0, Hi: 1},
	QualityWeightUserRating:         {Default: 0.25, Lo: 0, Hi: 1},
	QualityWeightResourceEfficiency: {Default: 0.15, Lo: 0, Hi: 1},

	SelectionWeightLatency:     {Default: 0.25, Lo: 0, Hi: 1},
	SelectionWeightQuality:     {Default: 0.30, Lo: 0, Hi: 1},
	SelectionWeightCost:        {Default: 0.15, Lo: 0, Hi: 1},
	SelectionWeightReliability: {Default: 0.20, Lo: 0, Hi: 1},
	SelectionWeightRecency:     {Default: 0.10, Lo: 0, Hi: 1},

	TunerExplorationRate:   {Default: 0.1, Lo: 0.01, Hi: 0.5},
	BanditExplorationBonus: {Default: 0.5, Lo: 0.05, Hi: 2.0},

	MemoryTierLowGB:    {Default: 2.0, Lo: 0.5, Hi: 8.0},
	MemoryTierMediumGB: {Default: 6.0, Lo: 2.0, Hi: 32.0},

	ConvergenceThreshold: {Default: 0.01, Lo: 0.001, Hi: 0.1},
	RollbackSensitivity:  {Default: 0.01, Lo: 0.005, Hi: 0.1},
}

// AllHyperparameterIds returns every id in the closed enumeration, in
// declaration order.
func AllHyperparameterIds() []HyperparameterId {
	ids := make([]HyperparameterId, 0, int(numHyperparameterIds))
	for id := HyperparameterId(0); id < numHyperparameterIds; id++ {
		ids = append(ids, id)
	}
	return ids
}

// NormalizationGroup is a set of ids whose current values must sum to 1.
// After any update to a member, all members renormalize so their sum is
// 1, each staying within its own [Lo, Hi].
type NormalizationGroup []HyperparameterId

// QualityCompositeWeights is the 4-member normalization group governing
// how outcome quality is composed from its sub-signals.
var QualityCompositeWeights = NormalizationGroup{
	QualityWeightSuccess,
	QualityWeightSpeed,
	QualityWeightUserRating,
	QualityWeightResourceEfficiency,
}

// SelectionWeights is the 5-member normalization group governing how
// candidate arms/models are scored for selection.
var SelectionWeights = NormalizationGroup{
	SelectionWeightLatency,
	SelectionWeightQuality,
	SelectionWeightCost,
	SelectionWeightReliability,
	SelectionWeightRecency,
}

// NormalizationGroups lists every normalization group the tuner enforces.
var NormalizationGroups = []NormalizationGroup{QualityCompositeWeights, SelectionWeights}

// GroupOf returns the normalization group id belongs to, or nil if id is
// not a member of any group.
func GroupOf(id HyperparameterId) NormalizationGroup {
	for _, g := range NormalizationGroups {
		for _, member := range g {
			if member == id {
				return g
			}
		}
	}
	return nil
}

// TunerMode selects how HyperparameterTuner.Sample modifies the raw
// Thompson/UCB draw before returning it.
type TunerMode int

const (
	ModeAggressive TunerMode = iota
	ModeBalanced
	ModeConservative
	ModeConvergent
)

func (m TunerMode) String() string {
	switch m {
	case ModeAggressive:
		return "aggressive"
	case ModeBalanced:
		return "balanced"
	case ModeConservative:
		return "conservative"
	case ModeConvergent:
		return "convergent"
	default:
		return "unknown"
	}
}
