package domain

import "time"

// FeedbackEvent is an immutable ingested signal.
type FeedbackEvent struct {
	Source           FeedbackSource
	RawValue         float64
	NormalizedValue  float64 // [0,1], higher = better for the system
	Confidence       float64 // [0,1]
	Timestamp        time.Time
	Context          FeedbackContext
}

// FeedbackCategory groups FeedbackSource variants for composite weighting.
type FeedbackCategory int

const (
	CategoryExplicit FeedbackCategory = iota
	CategoryImplicit
	CategorySystem
)

func (c FeedbackCategory) String() string {
	switch c {
	case CategoryExplicit:
		return "explicit"
	case CategoryImplicit:
		return "implicit"
	case CategorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// DefaultCategoryWeights is used by FeedbackAggregator.aggregate when
// combining per-category scores into a single composite.
var DefaultCategoryWeights = map[FeedbackCategory]float64{
	CategoryExplicit: 0.5,
	CategoryImplicit: 0.3,
	CategorySystem:   0.2,
}

// FeedbackSource is the closed enumeration of signal kinds the
// FeedbackAggregator ingests. Sources computed from caller-supplied
// values (ExplicitRating, Latency) carry no fixed DefaultNormalized —
// callers provide the raw value and the aggregator derives it.
type FeedbackSource int

const (
	// Explicit — the user deliberately signals an opinion.
	SourceExplicitRating FeedbackSource = iota
	SourceThumbsUp
	SourceThumbsDown
	SourceOverride
	SourceExplicitCorrection

	// Implicit — inferred from behavior, not a direct statement.
	SourceRegeneration
	SourceContinuation
	SourceAbandonment
	SourceEditBeforeSend
	SourceCopy
	SourceShare
	SourceLongDwell
	SourceQuickDismiss

	// System — observed by the system itself, not the user.
	SourceLatency
	SourceError
	SourceSuccess
	SourceTimeout

	numFeedbackSources
)

// FeedbackSourceSpec carries a source's category, default per-source
// weight (mutable via FeedbackAggregator.UpdateWeights, clamped to
// [0.01, 2.0]), whether higher normalized values mean "better," and — for
// sources recorded without a caller-supplied value — the fixed default
// normalized value and confidence used at record time.
type FeedbackSourceSpec struct {
	Category          FeedbackCategory
	DefaultWeight     float64
	HigherIsBetter    bool
	DefaultNormalized float64 // meaningless for computed sources (Rating, Latency)
	DefaultConfidence float64
}

// FeedbackSourceSpecs is the single source of truth for every feedback
// source's category, weight, and (where applicable) fixed recording
// defaults.
//
// SourceEditBeforeSend is intentionally implicit/not-higher-is-better
// with default normalized 0.3: an edit signals mild dissatisfaction,
// not failure. Keep this triple stable; downstream weighting depends
// on it.
var FeedbackSourceSpecs = map[FeedbackSource]FeedbackSourceSpec{
	SourceExplicitRating:     {Category: CategoryExplicit, DefaultWeight: 0.50, HigherIsBetter: true},
	SourceThumbsUp:           {Category: CategoryExplicit, DefaultWeight: 0.45, HigherIsBetter: true, DefaultNormalized: 1.0, DefaultConfidence: 0.9},
	SourceThumbsDown:         {Category: CategoryExplicit, DefaultWeight: 0.45, HigherIsBetter: true, DefaultNormalized: 0.0, DefaultConfidence: 0.9},
	SourceOverride:           {Category: CategoryExplicit, DefaultWeight: 0.40, HigherIsBetter: false, DefaultNormalized: 0.2, DefaultConfidence: 0.95},
	SourceExplicitCorrection: {Category: CategoryExplicit, DefaultWeight: 0.40, HigherIsBetter: false, DefaultNormalized: 0.15, DefaultConfidence: 0.95},

	SourceRegeneration:  {Category: CategoryImplicit, DefaultWeight: 0.35, HigherIsBetter: false, DefaultNormalized: 0.2, DefaultConfidence: 0.7},
	SourceContinuation:  {Category: CategoryImplicit, DefaultWeight: 0.30, HigherIsBetter: true, DefaultNormalized: 0.8, DefaultConfidence: 0.6},
	SourceAbandonment:   {Category: CategoryImplicit, DefaultWeight: 0.35, HigherIsBetter: false, DefaultNormalized: 0.15, DefaultConfidence: 0.65},
	SourceEditBeforeSend: {Category: CategoryImplicit, DefaultWeight: 0.30, HigherIsBetter: false, DefaultNormalized: 0.3, DefaultConfidence: 0.5},
	SourceCopy:          {Category: CategoryImplicit, DefaultWeight: 0.25, HigherIsBetter: true, DefaultNormalized: 0.75, DefaultConfidence: 0.55},
	SourceShare:         {Category: CategoryImplicit, DefaultWeight: 0.30, HigherIsBetter: true, DefaultNormalized: 0.85, DefaultConfidence: 0.6},
	SourceLongDwell:     {Category: CategoryImplicit, DefaultWeight: 0.20, HigherIsBetter: true, DefaultNormalized: 0.7, DefaultConfidence: 0.5},
	SourceQuickDismiss:  {Category: CategoryImplicit, DefaultWeight: 0.25, HigherIsBetter: false, DefaultNormalized: 0.25, DefaultConfidence: 0.55},

	SourceLatency: {Category: CategorySystem, DefaultWeight: 0.30, HigherIsBetter: true, DefaultConfidence: 1.0},
	SourceError:   {Category: CategorySystem, DefaultWeight: 0.50, HigherIsBetter: false, DefaultNormalized: 0.0, DefaultConfidence: 1.0},
	SourceSuccess: {Category: CategorySystem, DefaultWeight: 0.40, HigherIsBetter: true, DefaultNormalized: 0.9, DefaultConfidence: 0.9},
	SourceTimeout: {Category: CategorySystem, DefaultWeight: 0.45, HigherIsBetter: false, DefaultNormalized: 0.05, DefaultConfidence: 0.85},
}

// AllFeedbackSources returns every source in the closed enumeration.
func AllFeedbackSources() []FeedbackSource {
	out := make([]FeedbackSource, 0, int(numFeedbackSources))
	for s := FeedbackSource(0); s < numFeedbackSources; s++ {
		out = append(out, s)
	}
	return out
}

func (s FeedbackSource) String() string {
	switch s {
	case SourceExplicitRating:
		return "explicit_rating"
	case SourceThumbsUp:
		return "thumbs_up"
	case SourceThumbsDown:
		return "thumbs_down"
	case SourceOverride:
		return "override"
	case SourceExplicitCorrection:
		return "explicit_correction"
	case SourceRegeneration:
		return "regeneration"
	case SourceContinuation:
		return "continuation"
	case SourceAbandonment:
		return "abandonment"
	case SourceEditBeforeSend:
		return "edit_before_send"
	case SourceCopy:
		return "copy"
	case SourceShare:
		return "share"
	case SourceLongDwell:
		return "long_dwell"
	case SourceQuickDismiss:
		return "quick_dismiss"
	case SourceLatency:
		return "latency"
	case SourceError:
		return "error"
	case SourceSuccess:
		return "success"
	case SourceTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// FeedbackContext carries the optional correlation fields a FeedbackEvent
// may be indexed by.
type FeedbackContext struct {
	Model        string
	Task         string
	Conversation string
	Message      string
	Session      string
}
