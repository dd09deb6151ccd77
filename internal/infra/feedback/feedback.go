// Package feedback implements the Unified Feedback Aggregator: it
// normalizes, time-decays, and category-weights heterogeneous outcome
// signals into a single composite score per model or conversation.
package feedback

import (
	"math"
	"sync"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
)

const (
	maxEvents       = 10000
	defaultHalfLife = 7 * 24 * time.Hour
	persistEvery    = 100
)

// AggregatedFeedback is the FeedbackAggregator's output for a model,
// conversation, or the whole event set.
type AggregatedFeedback struct {
	Composite    float64
	Confidence   float64
	Contributing int
	BySource     map[domain.FeedbackSource]float64
	ByCategory   map[domain.FeedbackCategory]float64
}

// Config configures the FeedbackAggregator.
type Config struct {
	HalfLife time.Duration
	Now      func() time.Time
}

// DefaultConfig returns production defaults (one-week half-life).
func DefaultConfig() Config {
	return Config{HalfLife: defaultHalfLife, Now: time.Now}
}

// Aggregator is the Unified Feedback Aggregator.
type Aggregator struct {
	mu  sync.Mutex
	cfg Config

	store domain.BlobStore

	events []domain.FeedbackEvent

	byModel        map[string][]int
	byConversation map[string][]int

	sourceWeight map[domain.FeedbackSource]float64

	recordsSinceFlush int
}

// New creates an Aggregator with every source's weight initialized from
// domain.FeedbackSourceSpecs, restoring persisted state from store if
// present. store may be nil (persistence disabled).
func New(cfg Config, store domain.BlobStore) *Aggregator {
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = defaultHalfLife
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	a := &Aggregator{
		cfg:            cfg,
		store:          store,
		byModel:        make(map[string][]int),
		byConversation: make(map[string][]int),
		sourceWeight:   make(map[domain.FeedbackSource]float64, len(domain.FeedbackSourceSpecs)),
	}
	for src, spec := range domain.FeedbackSourceSpecs {
		a.sourceWeight[src] = spec.DefaultWeight
	}
	a.load()
	return a
}

// Record appends event, indexing it by model and conversation, and
// trims the event set to maxEvents by dropping the oldest half once
// full.
func (a *Aggregator) Record(event domain.FeedbackEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordLocked(event)
}

func (a *Aggregator) recordLocked(event domain.FeedbackEvent) {
	if len(a.events) >= maxEvents {
		a.trimLocked()
	}
	idx := len(a.events)
	a.events = append(a.events, event)
	if event.Context.Model != "" {
		a.byModel[event.Context.Model] = append(a.byModel[event.Context.Model], idx)
	}
	if event.Context.Conversation != "" {
		a.byConversation[event.Context.Conversation] = append(a.byConversation[event.Context.Conversation], idx)
	}
	a.recordsSinceFlush++
	if a.recordsSinceFlush >= persistEvery {
		a.recordsSinceFlush = 0
		a.flushLocked()
	}
}

// trimLocked drops the oldest half of the event set and rebuilds the
// model/conversation indices to match.
func (a *Aggregator) trimLocked() {
	keepFrom := len(a.events) / 2
	a.events = append([]domain.FeedbackEvent(nil), a.events[keepFrom:]...)
	a.byModel = make(map[string][]int)
	a.byConversation = make(map[string][]int)
	for i, e := range a.events {
		if e.Context.Model != "" {
			a.byModel[e.Context.Model] = append(a.byModel[e.Context.Model], i)
		}
		if e.Context.Conversation != "" {
			a.byConversation[e.Context.Conversation] = append(a.byConversation[e.Context.Conversation], i)
		}
	}
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

func (a *Aggregator) newEvent(source domain.FeedbackSource, normalized, confidence float64, ctx domain.FeedbackContext) domain.FeedbackEvent {
	return domain.FeedbackEvent{
		Source:          source,
		RawValue:        normalized,
		NormalizedValue: clamp(normalized, 0, 1),
		Confidence:      clamp(confidence, 0, 1),
		Timestamp:       a.cfg.Now(),
		Context:         ctx,
	}
}

// RecordRating records an explicit int/max rating, normalized to
// rating/max with confidence 1.0.
func (a *Aggregator) RecordRating(rating, max int, ctx domain.FeedbackContext) {
	normalized := 0.0
	if max > 0 {
		normalized = float64(rating) / float64(max)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.newEvent(domain.SourceExplicitRating, normalized, 1.0, ctx)
	e.RawValue = float64(rating)
	a.recordLocked(e)
}

// RecordThumbs records a thumbs up/down, confidence 0.9.
func (a *Aggregator) RecordThumbs(up bool, ctx domain.FeedbackContext) {
	source := domain.SourceThumbsDown
	normalized := 0.0
	if up {
		source = domain.SourceThumbsUp
		normalized = 1.0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordLocked(a.newEvent(source, normalized, 0.9, ctx))
}

// RecordLatency records a system latency observation with piecewise
// normalization: <1s -> 1.0; 1-3s -> linear to 0.7; 3-10s -> linear to
// 0.15; >10s -> linear decay toward a 0.1 floor.
func (a *Aggregator) RecordLatency(ms float64, ctx domain.FeedbackContext) {
	normalized := normalizeLatency(ms)
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.newEvent(domain.SourceLatency, normalized, domain.FeedbackSourceSpecs[domain.SourceLatency].DefaultConfidence, ctx)
	e.RawValue = ms
	a.recordLocked(e)
}

func normalizeLatency(ms float64) float64 {
	s := ms / 1000.0
	switch {
	case s < 1:
		return 1.0
	case s < 3:
		// linear from 1.0 at s=1 to 0.7 at s=3
		return 1.0 - (s-1)/(3-1)*(1.0-0.7)
	case s < 10:
		// linear from 0.7 at s=3 to 0.15 at s=10
		return 0.7 - (s-3)/(10-3)*(0.7-0.15)
	default:
		// decay toward a 0.1 floor
		v := 0.15 - (s-10)*0.01
		return math.Max(v, 0.1)
	}
}

// recordDefault records a source whose normalized value and confidence
// are fixed by domain.FeedbackSourceSpecs.
func (a *Aggregator) recordDefault(source domain.FeedbackSource, ctx domain.FeedbackContext) {
	spec := domain.FeedbackSourceSpecs[source]
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordLocked(a.newEvent(source, spec.DefaultNormalized, spec.DefaultConfidence, ctx))
}

func (a *Aggregator) RecordRegeneration(ctx domain.FeedbackContext) { a.recordDefault(domain.SourceRegeneration, ctx) }
func (a *Aggregator) RecordContinuation(ctx domain.FeedbackContext) { a.recordDefault(domain.SourceContinuation, ctx) }
func (a *Aggregator) RecordAbandonment(ctx domain.FeedbackContext)  { a.recordDefault(domain.SourceAbandonment, ctx) }
func (a *Aggregator) RecordOverride(ctx domain.FeedbackContext)     { a.recordDefault(domain.SourceOverride, ctx) }
func (a *Aggregator) RecordError(ctx domain.FeedbackContext)        { a.recordDefault(domain.SourceError, ctx) }
func (a *Aggregator) RecordSuccess(ctx domain.FeedbackContext)      { a.recordDefault(domain.SourceSuccess, ctx) }
func (a *Aggregator) RecordEdit(ctx domain.FeedbackContext)         { a.recordDefault(domain.SourceEditBeforeSend, ctx) }
func (a *Aggregator) RecordCopy(ctx domain.FeedbackContext)         { a.recordDefault(domain.SourceCopy, ctx) }
func (a *Aggregator) RecordShare(ctx domain.FeedbackContext)        { a.recordDefault(domain.SourceShare, ctx) }
func (a *Aggregator) RecordTimeout(ctx domain.FeedbackContext)      { a.recordDefault(domain.SourceTimeout, ctx) }
func (a *Aggregator) RecordLongDwell(ctx domain.FeedbackContext)    { a.recordDefault(domain.SourceLongDwell, ctx) }
func (a *Aggregator) RecordQuickDismiss(ctx domain.FeedbackContext) { a.recordDefault(domain.SourceQuickDismiss, ctx) }
func (a *Aggregator) RecordExplicitCorrection(ctx domain.FeedbackContext) {
	a.recordDefault(domain.SourceExplicitCorrection, ctx)
}

// AggregateForModel aggregates every event indexed under model.
func (a *Aggregator) AggregateForModel(model string) AggregatedFeedback {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aggregateIndicesLocked(a.byModel[model])
}

// AggregateForConversation aggregates every event indexed under conversation.
func (a *Aggregator) AggregateForConversation(conversation string) AggregatedFeedback {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aggregateIndicesLocked(a.byConversation[conversation])
}

// All aggregates the full event set.
func (a *Aggregator) All() AggregatedFeedback {
	a.mu.Lock()
	defer a.mu.Unlock()
	all := make([]int, len(a.events))
	for i := range a.events {
		all[i] = i
	}
	return a.aggregateIndicesLocked(all)
}

func (a *Aggregator) aggregateIndicesLocked(indices []int) AggregatedFeedback {
	events := make([]domain.FeedbackEvent, 0, len(indices))
	for _, i := range indices {
		events = append(events, a.events[i])
	}
	return a.aggregateLocked(events)
}

func (a *Aggregator) aggregateLocked(events []domain.FeedbackEvent) AggregatedFeedback {
	if len(events) == 0 {
		return AggregatedFeedback{Composite: 0.5, Confidence: 0, BySource: map[domain.FeedbackSource]float64{}, ByCategory: map[domain.FeedbackCategory]float64{}}
	}
	now := a.cfg.Now()
	halfLife := a.cfg.HalfLife.Seconds()

	sourceWeightedSum := make(map[domain.FeedbackSource]float64)
	sourceWeightSum := make(map[domain.FeedbackSource]float64)
	categoryWeightedSum := make(map[domain.FeedbackCategory]float64)
	categoryWeightSum := make(map[domain.FeedbackCategory]float64)

	var ageSum float64
	for _, e := range events {
		age := now.Sub(e.Timestamp).Seconds()
		if age < 0 {
			age = 0
		}
		ageSum += age
		decay := math.Pow(0.5, age/halfLife)
		w := a.sourceWeight[e.Source] * e.Confidence * decay

		sourceWeightedSum[e.Source] += w * e.NormalizedValue
		sourceWeightSum[e.Source] += w

		cat := domain.FeedbackSourceSpecs[e.Source].Category
		categoryWeightedSum[cat] += w * e.NormalizedValue
		categoryWeightSum[cat] += w
	}

	bySource := make(map[domain.FeedbackSource]float64, len(sourceWeightedSum))
	for s, sum := range sourceWeightedSum {
		if wsum := sourceWeightSum[s]; wsum > 0 {
			bySource[s] = sum / wsum
		}
	}
	byCategory := make(map[domain.FeedbackCategory]float64, len(categoryWeightedSum))
	for c, sum := range categoryWeightedSum {
		if wsum := categoryWeightSum[c]; wsum > 0 {
			byCategory[c] = sum / wsum
		}
	}

	var compositeNum, compositeDen float64
	for cat, score := range byCategory {
		cw := domain.DefaultCategoryWeights[cat]
		compositeNum += cw * score
		compositeDen += cw
	}
	composite := 0.5
	if compositeDen > 0 {
		composite = compositeNum / compositeDen
	}

	avgAge := ageSum / float64(len(events))
	confidence := 0.6*math.Min(1, float64(len(events))/25) + 0.4*math.Max(0, 1-avgAge/(2*halfLife))

	return AggregatedFeedback{
		Composite:    composite,
		Confidence:   confidence,
		Contributing: len(events),
		BySource:     bySource,
		ByCategory:   byCategory,
	}
}

// UpdateWeights adjusts each event's source weight toward groundTruth:
// weight += 0.01 * (groundTruth - normalized) * confidence, clamped to
// [0.01, 2.0].
func (a *Aggregator) UpdateWeights(groundTruth float64, events []domain.FeedbackEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range events {
		w := a.sourceWeight[e.Source]
		w += 0.01 * (groundTruth - e.NormalizedValue) * e.Confidence
		a.sourceWeight[e.Source] = clamp(w, 0.01, 2.0)
	}
}

// SourceWeight returns source's current learned weight.
func (a *Aggregator) SourceWeight(source domain.FeedbackSource) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sourceWeight[source]
}
