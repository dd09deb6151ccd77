// Package telemetry exposes the governance core's Prometheus metrics
// and a lightweight in-memory phase tracer for governance cycles.
//
// The tracer stores spans in a bounded in-memory buffer for inspection
// and export; in a deployment that ships traces elsewhere it would wrap
// an OTel SDK, but nothing in the core requires that.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Prometheus Metrics ─────────────────────────────────────────────────────

// CycleDuration tracks governance cycle wall-clock duration.
var CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "govcore",
	Subsystem: "orchestrator",
	Name:      "cycle_duration_seconds",
	Help:      "Governance cycle duration in seconds.",
	Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
})

// CyclesTotal counts completed cycles by outcome.
var CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "govcore",
	Subsystem: "orchestrator",
	Name:      "cycles_total",
	Help:      "Total governance cycles by outcome.",
}, []string{"outcome"})

// LifecycleState tracks the orchestrator's lifecycle state as a gauge
// (0=stopped, 1=starting, 2=learning, 3=optimizing, 4=paused,
// 5=degraded, 6=recovering).
var LifecycleState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "govcore",
	Subsystem: "orchestrator",
	Name:      "lifecycle_state",
	Help:      "Current orchestrator lifecycle state.",
})

// ConvergenceState tracks the detector's classification as a gauge
// (0=unknown, 1=exploring, 2=converging, 3=converged, 4=diverging,
// 5=unstable).
var ConvergenceState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "govcore",
	Subsystem: "detector",
	Name:      "convergence_state",
	Help:      "Current convergence state classification.",
})

// TunerConvergence tracks the fraction of hyperparameters converged.
var TunerConvergence = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "govcore",
	Subsystem: "tuner",
	Name:      "system_convergence",
	Help:      "Fraction of hyperparameters currently converged.",
})

// BanditPulls counts bandit arm pulls by arm id.
var BanditPulls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "govcore",
	Subsystem: "bandit",
	Name:      "pulls_total",
	Help:      "Total bandit arm pulls by arm.",
}, []string{"arm"})

// MetaDecisions counts meta-controller decisions by action.
var MetaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "govcore",
	Subsystem: "meta",
	Name:      "decisions_total",
	Help:      "Total meta-controller decisions by action.",
}, []string{"action"})

// NextInterval tracks the most recently scheduled cycle interval.
var NextInterval = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "govcore",
	Subsystem: "scheduler",
	Name:      "next_interval_seconds",
	Help:      "The most recently scheduled governance cycle interval.",
})

// FeedbackEvents counts ingested feedback events by source.
var FeedbackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "govcore",
	Subsystem: "feedback",
	Name:      "events_total",
	Help:      "Total ingested feedback events by source.",
}, []string{"source"})

// Rollbacks counts checkpoint rollbacks.
var Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "govcore",
	Subsystem: "meta",
	Name:      "rollbacks_total",
	Help:      "Total checkpoint rollbacks applied.",
})

// ─── Cycle Phase Tracer ─────────────────────────────────────────────────────

// Span is one recorded phase of a governance cycle.
type Span struct {
	Cycle     int64         `json:"cycle"`
	Phase     string        `json:"phase"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"err,omitempty"`
}

// Tracer records cycle phase spans into a bounded ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// NewTracer creates a Tracer keeping at most maxSpans spans.
func NewTracer(maxSpans int, enabled bool) *Tracer {
	if maxSpans <= 0 {
		maxSpans = 1000
	}
	return &Tracer{maxSpans: maxSpans, enabled: enabled}
}

// Record appends one completed phase span.
func (t *Tracer) Record(cycle int64, phase string, start time.Time, d time.Duration, err error) {
	if !t.enabled {
		return
	}
	span := Span{Cycle: cycle, Phase: phase, StartTime: start, Duration: d}
	if err != nil {
		span.Err = err.Error()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, span)
}

// Spans returns the most recent limit spans (all of them for limit<=0).
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	out := make([]Span, limit)
	copy(out, t.spans[len(t.spans)-limit:])
	return out
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}
