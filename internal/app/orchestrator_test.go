package app

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
	"github.com/tutu-network/govcore/internal/infra/bandit"
	"github.com/tutu-network/govcore/internal/infra/blobstore/memstore"
	"github.com/tutu-network/govcore/internal/infra/convergence"
	"github.com/tutu-network/govcore/internal/infra/feedback"
	"github.com/tutu-network/govcore/internal/infra/meta"
	"github.com/tutu-network/govcore/internal/infra/scheduler"
	"github.com/tutu-network/govcore/internal/infra/tuner"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) HourOf(t time.Time) int  { return t.Hour() }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type staticProbe struct {
	snap domain.ResourceSnapshot
}

func (p staticProbe) Snapshot() domain.ResourceSnapshot { return p.snap }

type seqRng struct {
	vals []float64
	i    int
}

func (r *seqRng) Uniform() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func newSeqRng() *seqRng {
	return &seqRng{vals: []float64{0.31, 0.72, 0.14, 0.59, 0.88, 0.05, 0.47, 0.66}}
}

type harness struct {
	clock      *fakeClock
	orch       *Orchestrator
	aggregator *feedback.Aggregator
	tuner      *tuner.Tuner
	detector   *convergence.Detector
	controller *meta.Controller
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	now := func() time.Time { return clock.t }
	store := memstore.New()
	rng := newSeqRng()

	agg := feedback.New(feedback.Config{HalfLife: 7 * 24 * time.Hour, Now: now}, store)
	tn := tuner.New(tuner.Config{Mode: domain.ModeBalanced, Now: now}, rng, store)
	bd := bandit.New(bandit.Config{MinPullsForContext: 5, PersistEvery: 50, Now: now}, rng, store, tn)
	detCfg := convergence.DefaultConfig()
	detCfg.Now = now
	det := convergence.New(detCfg, tn, store)
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Now = now
	sched := scheduler.New(schedCfg, store)
	metaCfg := meta.DefaultConfig()
	metaCfg.Now = now
	ctrl := meta.New(metaCfg, rng, store, det)

	probe := staticProbe{snap: domain.ResourceSnapshot{
		AvailableMemoryGB: 8, TotalMemoryGB: 16, AvailableDiskGB: 100, Thermal: domain.ThermalNominal,
	}}
	orch := New(cfg, clock, probe, agg, tn, bd, det, sched, ctrl, Events{})
	return &harness{clock: clock, orch: orch, aggregator: agg, tuner: tn, detector: det, controller: ctrl}
}

// oscillate pre-feeds the detector with an oscillating score window so
// its state classifies as unstable.
func (h *harness) oscillate(n int) {
	for i := 0; i < n; i++ {
		v := 0.8
		if i%2 == 1 {
			v = 0.6
		}
		h.detector.Record(snapshotWithScore(v, h.clock.t))
		h.clock.advance(time.Second)
	}
}

// settle pre-feeds the detector with flat scores so its state calms.
func (h *harness) settle(n int) {
	for i := 0; i < n; i++ {
		h.detector.Record(snapshotWithScore(0.7, h.clock.t))
		h.clock.advance(time.Second)
	}
}

func snapshotWithScore(v float64, at time.Time) domain.MetricSnapshot {
	return domain.MetricSnapshot{
		CompositeQuality:   v,
		UserSatisfaction:   v,
		ResourceEfficiency: v,
		ErrorRate:          1 - v,
		Timestamp:          at,
	}
}

func TestOrchestrator_WarmupThenOptimizing(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if h.orch.State() != StateStopped {
		t.Fatalf("fresh orchestrator should be stopped, got %v", h.orch.State())
	}

	for i := 0; i < 4; i++ {
		m := h.orch.RunCycle()
		if !m.OverallSuccess {
			t.Fatalf("cycle %d with no issues should succeed", i+1)
		}
		h.clock.advance(time.Minute)
	}
	if got := h.orch.State(); got != StateLearning {
		t.Fatalf("expected learning during warmup, got %v", got)
	}

	for i := 0; i < 3; i++ {
		h.orch.RunCycle()
		h.clock.advance(time.Minute)
	}
	if got := h.orch.State(); got != StateOptimizing {
		t.Fatalf("expected optimizing after warmup, got %v", got)
	}
	if h.orch.CycleCount() != 7 {
		t.Fatalf("expected 7 cycles, got %d", h.orch.CycleCount())
	}
}

func TestOrchestrator_DegradedAfterConsecutiveFailuresThenRecovers(t *testing.T) {
	cfg := DefaultConfig()
	// A huge evaluation stride means cycles never apply changes, so an
	// unstable detector turns every cycle into a required-but-unapplied
	// failure.
	cfg.EvaluateEvery = 1_000_000
	h := newHarness(t, cfg)

	h.oscillate(30)
	for i := 0; i < 3; i++ {
		m := h.orch.RunCycle()
		if m.OverallSuccess {
			t.Fatalf("cycle %d should fail while unstable with no changes applied", i+1)
		}
		h.clock.advance(time.Minute)
	}
	if got := h.orch.State(); got != StateDegraded {
		t.Fatalf("expected degraded after 3 failed cycles, got %v", got)
	}

	h.settle(60)
	h.orch.RunCycle()
	if got := h.orch.State(); got != StateRecovering {
		t.Fatalf("expected recovering after a successful cycle, got %v", got)
	}
	h.orch.RunCycle()
	if got := h.orch.State(); got == StateDegraded || got == StateRecovering {
		t.Fatalf("expected normal operation after recovery, got %v", got)
	}
}

func TestOrchestrator_RollbackRestoresTunerValues(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	id := domain.TunerExplorationRate
	h.detector.Record(snapshotWithScore(0.8, h.clock.t))
	cp := h.detector.CreateCheckpoint("good state", domain.StrategyThompson, 0.1,
		map[domain.HyperparameterId]float64{id: 0.25})

	// Drift the tuner away from the checkpointed value.
	for i := 0; i < 10; i++ {
		h.tuner.RecordOutcome(id, 0.45, 0.9, "")
	}
	if math.Abs(h.tuner.Value(id)-0.25) < 0.01 {
		t.Fatal("expected the tuner to drift away from the checkpoint before rollback")
	}

	applied := h.orch.applyDecision(domain.MetaDecision{
		Action:         domain.ActionRollbackTo,
		RollbackTarget: &cp,
	})
	if applied != 1 {
		t.Fatalf("rollback should count as one applied change, got %d", applied)
	}
	if got := h.tuner.Value(id); math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("rollback should restore the checkpointed value 0.25, got %.4f", got)
	}
}

func TestOrchestrator_RollbackWithoutTargetDowngradesToContinue(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	before := h.controller.State()
	if applied := h.orch.applyDecision(domain.MetaDecision{Action: domain.ActionRollbackTo}); applied != 0 {
		t.Fatalf("rollback with no target must apply nothing, got %d", applied)
	}
	if h.controller.State() != before {
		t.Fatal("downgraded rollback must leave controller state untouched")
	}
}

func TestOrchestrator_CheckpointDecisionSnapshotsParameters(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.detector.Record(snapshotWithScore(0.75, h.clock.t))

	h.orch.applyDecision(domain.MetaDecision{Action: domain.ActionCreateCheckpoint, Reason: "test"})

	cp, ok := h.detector.FindBestCheckpoint()
	if !ok {
		t.Fatal("expected a checkpoint to be created")
	}
	if len(cp.ParameterSnapshot) != len(domain.AllHyperparameterIds()) {
		t.Fatalf("checkpoint should snapshot every hyperparameter, got %d", len(cp.ParameterSnapshot))
	}
}

func TestOrchestrator_PauseSkipsCyclesUntilResume(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.orch.RunCycle()
	h.orch.Pause()
	if got := h.orch.State(); got != StatePaused {
		t.Fatalf("expected paused, got %v", got)
	}
	h.orch.Resume()
	if got := h.orch.State(); got == StatePaused {
		t.Fatal("resume should leave the paused state")
	}
}

func TestOrchestrator_HistoryIsBounded(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	for i := 0; i < maxCycleHistory+20; i++ {
		h.orch.RunCycle()
		h.clock.advance(time.Second)
	}
	if got := len(h.orch.History()); got != maxCycleHistory {
		t.Fatalf("history must stay bounded at %d, got %d", maxCycleHistory, got)
	}
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	// Give the first cycle a moment, then cancel mid-sleep.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
	if got := h.orch.State(); got != StateStopped {
		t.Fatalf("expected stopped after cancel, got %v", got)
	}
}
