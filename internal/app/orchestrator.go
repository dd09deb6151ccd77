// Package app wires the six governance components together and drives
// the periodic governance cycle.
//
// Lock discipline: each component guards its state with one mutex. The
// Orchestrator calls components one at a time and holds none of its own
// locks while doing so. Three components call another while holding
// their own lock, each toward a component it depends on: the Bandit and
// the Detector read live values from the Tuner, and the MetaController
// queries the Detector's checkpoints. No call goes the other way.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
	"github.com/tutu-network/govcore/internal/infra/bandit"
	"github.com/tutu-network/govcore/internal/infra/convergence"
	"github.com/tutu-network/govcore/internal/infra/feedback"
	"github.com/tutu-network/govcore/internal/infra/meta"
	"github.com/tutu-network/govcore/internal/infra/scheduler"
	"github.com/tutu-network/govcore/internal/infra/telemetry"
	"github.com/tutu-network/govcore/internal/infra/tuner"
)

// LifecycleState is the orchestrator's coarse operating state.
type LifecycleState int

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateLearning
	StateOptimizing
	StatePaused
	StateDegraded
	StateRecovering
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateLearning:
		return "learning"
	case StateOptimizing:
		return "optimizing"
	case StatePaused:
		return "paused"
	case StateDegraded:
		return "degraded"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// GovernanceCycleMetrics summarizes one completed cycle.
type GovernanceCycleMetrics struct {
	Cycle          int64
	Duration       time.Duration
	ChangesApplied int
	IssuesDetected int
	ResourceUsage  float64
	OverallSuccess bool
	StartedAt      time.Time
}

const maxCycleHistory = 100

// Config configures the Orchestrator.
type Config struct {
	// WarmupCycles is how many cycles run in the learning state before
	// the orchestrator switches to optimizing.
	WarmupCycles int

	// EvaluateEvery runs the MetaController's evaluate() on every k-th
	// cycle.
	EvaluateEvery int

	// MaxConsecutiveFailures is how many cycles that required a change
	// but applied none put the orchestrator into the degraded state.
	MaxConsecutiveFailures int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WarmupCycles:           5,
		EvaluateEvery:          1,
		MaxConsecutiveFailures: 3,
	}
}

// Events carries optional push callbacks. The core is pull-based;
// consumers that need push wire a callback here instead of an observer
// framework.
type Events struct {
	OnDecision func(domain.MetaDecision)
	OnCycle    func(GovernanceCycleMetrics)
}

// Orchestrator owns the six components and drives the governance loop.
type Orchestrator struct {
	mu  sync.Mutex
	cfg Config

	clock domain.Clock
	probe domain.ResourceProbe

	aggregator *feedback.Aggregator
	tuner      *tuner.Tuner
	bandit     *bandit.Bandit
	detector   *convergence.Detector
	scheduler  *scheduler.Scheduler
	controller *meta.Controller

	tracer *telemetry.Tracer
	events Events

	state        LifecycleState
	cycleCount   int64
	lastDecision domain.MetaDecision
	nextRunAt    time.Time

	consecutiveFailures int
	lastContributing    int

	history []GovernanceCycleMetrics

	wake chan struct{}
}

// New wires an Orchestrator from its components. Every dependency is
// injected; there are no hidden globals.
func New(cfg Config, clock domain.Clock, probe domain.ResourceProbe,
	agg *feedback.Aggregator, tn *tuner.Tuner, bd *bandit.Bandit,
	det *convergence.Detector, sched *scheduler.Scheduler, ctrl *meta.Controller,
	events Events) *Orchestrator {
	if cfg.WarmupCycles <= 0 {
		cfg.WarmupCycles = 5
	}
	if cfg.EvaluateEvery <= 0 {
		cfg.EvaluateEvery = 1
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if clock == nil {
		clock = domain.NewSystemClock()
	}
	return &Orchestrator{
		cfg:        cfg,
		clock:      clock,
		probe:      probe,
		aggregator: agg,
		tuner:      tn,
		bandit:     bd,
		detector:   det,
		scheduler:  sched,
		controller: ctrl,
		tracer:     telemetry.NewTracer(1000, true),
		events:     events,
		state:      StateStopped,
		wake:       make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() LifecycleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CycleCount returns how many cycles have completed.
func (o *Orchestrator) CycleCount() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cycleCount
}

// LastDecision returns the most recent MetaDecision.
func (o *Orchestrator) LastDecision() domain.MetaDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastDecision
}

// NextRunAt returns when the next cycle is scheduled.
func (o *Orchestrator) NextRunAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.nextRunAt
}

// History returns a copy of the bounded cycle metrics history.
func (o *Orchestrator) History() []GovernanceCycleMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]GovernanceCycleMetrics, len(o.history))
	copy(out, o.history)
	return out
}

// Tracer exposes the cycle phase tracer for inspection.
func (o *Orchestrator) Tracer() *telemetry.Tracer { return o.tracer }

// Pause suspends cycling until Resume.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateStopped {
		o.state = StatePaused
		telemetry.LifecycleState.Set(float64(o.state))
	}
}

// Resume continues cycling after a Pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	if o.state == StatePaused {
		o.state = o.runningStateLocked()
		telemetry.LifecycleState.Set(float64(o.state))
	}
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// runningStateLocked is the normal state for the current cycle count.
func (o *Orchestrator) runningStateLocked() LifecycleState {
	if o.cycleCount < int64(o.cfg.WarmupCycles) {
		return StateLearning
	}
	return StateOptimizing
}

// Run drives governance cycles until ctx is cancelled. ctx is checked
// only while Run waits for the next cycle: a cycle that has started runs
// all of its phases before Run sees the cancellation and returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.state = StateStarting
	telemetry.LifecycleState.Set(float64(o.state))
	o.mu.Unlock()

	for {
		o.mu.Lock()
		if o.state == StateStarting {
			o.state = o.runningStateLocked()
			telemetry.LifecycleState.Set(float64(o.state))
		}
		paused := o.state == StatePaused
		o.mu.Unlock()

		if !paused {
			o.RunCycle()
		}

		interval := o.scheduler.NextInterval()
		telemetry.NextInterval.Set(interval.Seconds)
		o.mu.Lock()
		o.nextRunAt = o.clock.Now().Add(time.Duration(interval.Seconds * float64(time.Second)))
		o.mu.Unlock()

		timer := time.NewTimer(time.Duration(interval.Seconds * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			o.mu.Lock()
			o.state = StateStopped
			telemetry.LifecycleState.Set(float64(o.state))
			o.mu.Unlock()
			return ctx.Err()
		case <-o.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// RunCycle executes one governance cycle synchronously. Exposed so the
// daemon's Run loop and tests can drive cycles without real sleeps.
func (o *Orchestrator) RunCycle() GovernanceCycleMetrics {
	start := o.clock.Now()
	cycle := o.CycleCount() + 1

	// Phase 1: observe — resource pressure and feedback aggregate.
	phaseStart := start
	resourceUsage := 0.5
	var snap domain.ResourceSnapshot
	if o.probe != nil {
		snap = o.probe.Snapshot()
		if snap.TotalMemoryGB > 0 {
			resourceUsage = clamp01(1 - snap.AvailableMemoryGB/snap.TotalMemoryGB)
		}
	}
	agg := o.aggregator.All()
	o.tracer.Record(cycle, "observe", phaseStart, o.clock.Now().Sub(phaseStart), nil)

	// Phase 2: feed the scheduler current conditions.
	phaseStart = o.clock.Now()
	o.mu.Lock()
	contributingDelta := agg.Contributing - o.lastContributing
	if contributingDelta < 0 {
		contributingDelta = 0
	}
	o.lastContributing = agg.Contributing
	o.mu.Unlock()
	activityScore := clamp01(float64(contributingDelta) / 50)
	o.scheduler.RecordActivity(activityScore, start)
	o.scheduler.Observe(activityLevelFor(activityScore), stabilityFor(o.detector.State()), resourceLevelFor(snap, resourceUsage))
	o.tracer.Record(cycle, "schedule-inputs", phaseStart, o.clock.Now().Sub(phaseStart), nil)

	// Phase 3: derive a metric snapshot and feed the detector.
	phaseStart = o.clock.Now()
	metrics := o.deriveMetricSnapshot(agg, resourceUsage, start)
	o.detector.Record(metrics)
	detState := o.detector.State()
	telemetry.ConvergenceState.Set(float64(detState))
	o.tracer.Record(cycle, "detect", phaseStart, o.clock.Now().Sub(phaseStart), nil)

	// Phase 4: meta evaluation and decision application.
	phaseStart = o.clock.Now()
	changesApplied := 0
	issuesDetected := 0
	if detState == domain.StateDiverging || detState == domain.StateUnstable {
		issuesDetected++
	}
	overall := metrics.OverallScore()
	var decision domain.MetaDecision
	if cycle%int64(o.cfg.EvaluateEvery) == 0 {
		o.controller.RecordOutcome(overall >= 0.5, overall, metrics)
		decision = o.controller.Evaluate()
		changesApplied += o.applyDecision(decision)
		telemetry.MetaDecisions.WithLabelValues(decision.Action.String()).Inc()
		if o.events.OnDecision != nil {
			o.events.OnDecision(decision)
		}
	} else {
		decision = domain.MetaDecision{Action: domain.ActionContinue, Reason: "off-cycle", Confidence: 1}
	}
	o.tracer.Record(cycle, "evaluate", phaseStart, o.clock.Now().Sub(phaseStart), nil)

	// Phase 5: feed tuner outcomes for the weight groups from the
	// cycle's composite quality.
	phaseStart = o.clock.Now()
	for _, id := range domain.QualityCompositeWeights {
		o.tuner.RecordOutcome(id, o.tuner.Value(id), overall, "cycle")
	}
	for _, id := range domain.SelectionWeights {
		o.tuner.RecordOutcome(id, o.tuner.Value(id), overall, "cycle")
	}
	telemetry.TunerConvergence.Set(o.tuner.SystemConvergence())
	o.tracer.Record(cycle, "tune", phaseStart, o.clock.Now().Sub(phaseStart), nil)

	// Phase 6: account for the cycle and schedule the next one.
	duration := o.clock.Now().Sub(start)
	o.scheduler.RecordOutcome(duration, changesApplied, issuesDetected, resourceUsage)

	required := issuesDetected > 0
	success := !required || changesApplied > 0

	m := GovernanceCycleMetrics{
		Cycle:          cycle,
		Duration:       duration,
		ChangesApplied: changesApplied,
		IssuesDetected: issuesDetected,
		ResourceUsage:  resourceUsage,
		OverallSuccess: success,
		StartedAt:      start,
	}

	o.mu.Lock()
	o.cycleCount = cycle
	o.lastDecision = decision
	o.history = append(o.history, m)
	if len(o.history) > maxCycleHistory {
		o.history = o.history[len(o.history)-maxCycleHistory:]
	}
	if success {
		o.consecutiveFailures = 0
		switch o.state {
		case StateDegraded:
			o.state = StateRecovering
		case StatePaused:
			// cycles driven externally while paused leave the state alone
		default:
			o.state = o.runningStateLocked()
		}
	} else {
		o.consecutiveFailures++
		if o.consecutiveFailures >= o.cfg.MaxConsecutiveFailures && o.state != StatePaused {
			o.state = StateDegraded
		}
	}
	telemetry.LifecycleState.Set(float64(o.state))
	o.mu.Unlock()

	telemetry.CycleDuration.Observe(duration.Seconds())
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	telemetry.CyclesTotal.WithLabelValues(outcome).Inc()

	if o.events.OnCycle != nil {
		o.events.OnCycle(m)
	}
	return m
}

// Component accessors: hosts embed the orchestrator and reach the
// individual components through these (query methods, not observers).

func (o *Orchestrator) Aggregator() *feedback.Aggregator { return o.aggregator }
func (o *Orchestrator) Tuner() *tuner.Tuner              { return o.tuner }
func (o *Orchestrator) Bandit() *bandit.Bandit           { return o.bandit }
func (o *Orchestrator) Detector() *convergence.Detector  { return o.detector }
func (o *Orchestrator) Scheduler() *scheduler.Scheduler  { return o.scheduler }
func (o *Orchestrator) Controller() *meta.Controller     { return o.controller }

// RollbackTo applies a manual rollback to the retained checkpoint with
// the given id. Returns false if no such checkpoint exists.
func (o *Orchestrator) RollbackTo(id string) bool {
	for _, cp := range o.detector.Checkpoints() {
		if cp.ID == id {
			target := cp
			o.applyDecision(domain.MetaDecision{
				Action:         domain.ActionRollbackTo,
				Reason:         "manual rollback",
				Confidence:     1,
				RollbackTarget: &target,
			})
			return true
		}
	}
	return false
}

// Flush forces a persistence write on every component, for shutdown.
func (o *Orchestrator) Flush() {
	o.aggregator.Flush()
	o.tuner.Flush()
	o.bandit.Flush()
	o.detector.Flush()
	o.scheduler.Flush()
	o.controller.Flush()
}

// applyDecision applies a MetaDecision across components and reports how
// many changes were applied.
func (o *Orchestrator) applyDecision(decision domain.MetaDecision) int {
	switch decision.Action {
	case domain.ActionContinue:
		o.controller.Apply(decision)
		return 0
	case domain.ActionRollbackTo:
		if decision.RollbackTarget == nil {
			// Invalid transition: downgrade to continue.
			o.controller.Apply(domain.MetaDecision{Action: domain.ActionContinue})
			return 0
		}
		o.controller.Apply(decision)
		o.tuner.RestoreValues(decision.RollbackTarget.ParameterSnapshot)
		telemetry.Rollbacks.Inc()
		return 1
	case domain.ActionCreateCheckpoint:
		o.controller.Apply(decision)
		st := o.controller.State()
		o.detector.CreateCheckpoint(decision.Reason, st.Strategy, st.LearningRate, o.tuner.CurrentValues())
		return 1
	default:
		o.controller.Apply(decision)
		return 1
	}
}

// deriveMetricSnapshot translates an aggregate feedback reading plus
// resource pressure into the detector's input.
func (o *Orchestrator) deriveMetricSnapshot(agg feedback.AggregatedFeedback, resourceUsage float64, at time.Time) domain.MetricSnapshot {
	quality := agg.Composite
	satisfaction := quality
	if v, ok := agg.ByCategory[domain.CategoryExplicit]; ok {
		satisfaction = v
	}
	errorRate := 0.0
	if v, ok := agg.ByCategory[domain.CategorySystem]; ok {
		errorRate = clamp01(1 - v)
	}
	latency := 0.5
	if v, ok := agg.BySource[domain.SourceLatency]; ok {
		latency = v
	}
	return domain.MetricSnapshot{
		CompositeQuality:   quality,
		Latency:            latency,
		UserSatisfaction:   satisfaction,
		ErrorRate:          errorRate,
		ResourceEfficiency: clamp01(1 - resourceUsage),
		Timestamp:          at,
	}
}

func activityLevelFor(score float64) scheduler.ActivityLevel {
	switch {
	case score < 0.125:
		return scheduler.ActivityIdle
	case score < 0.375:
		return scheduler.ActivityLow
	case score < 0.625:
		return scheduler.ActivityModerate
	case score < 0.875:
		return scheduler.ActivityHigh
	default:
		return scheduler.ActivityIntense
	}
}

func stabilityFor(state domain.ConvergenceState) scheduler.StabilityLevel {
	switch state {
	case domain.StateConverged:
		return scheduler.StabilityStable
	case domain.StateConverging, domain.StateExploring, domain.StateUnknown:
		return scheduler.StabilityConverging
	case domain.StateDiverging:
		return scheduler.StabilityUnstable
	case domain.StateUnstable:
		return scheduler.StabilityCritical
	default:
		return scheduler.StabilityConverging
	}
}

func resourceLevelFor(snap domain.ResourceSnapshot, usage float64) scheduler.ResourceLevel {
	if snap.Thermal >= domain.ThermalSerious {
		return scheduler.ResourceCritical
	}
	switch {
	case usage < 0.3:
		return scheduler.ResourceAbundant
	case usage < 0.6:
		return scheduler.ResourceNormal
	case usage < 0.85:
		return scheduler.ResourceConstrained
	default:
		return scheduler.ResourceCritical
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
