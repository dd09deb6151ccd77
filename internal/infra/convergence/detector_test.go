package convergence

import (
	"math"
	"testing"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// snapshotWithScore builds a MetricSnapshot whose OverallScore equals v:
// every component set to v and the error rate to 1-v makes the weighted
// combination collapse to v itself.
func snapshotWithScore(v float64, at time.Time) domain.MetricSnapshot {
	return domain.MetricSnapshot{
		CompositeQuality:   v,
		UserSatisfaction:   v,
		ResourceEfficiency: v,
		ErrorRate:          1 - v,
		Timestamp:          at,
	}
}

func TestDetector_InsufficientDataIsUnknown(t *testing.T) {
	d := New(DefaultConfig(), nil, newMemStore())
	for i := 0; i < 10; i++ {
		d.Record(snapshotWithScore(0.7, time.Unix(int64(i), 0)))
	}
	got := d.Analyze()
	if got.State != domain.StateUnknown || got.Confidence != 0 {
		t.Fatalf("expected unknown state with zero confidence below min samples, got %+v", got)
	}
}

func TestDetector_FlatWindowConverges(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cfg := DefaultConfig()
	cfg.Now = fixedClock(now)
	d := New(cfg, nil, newMemStore())

	for i := 0; i < 25; i++ {
		d.Record(snapshotWithScore(0.7, now.Add(time.Duration(i)*time.Minute)))
	}
	got := d.Analyze()
	if got.State != domain.StateConverged {
		t.Fatalf("expected converged for a flat window, got %v (variance %.6f trend %.6f)", got.State, got.Variance, got.Trend)
	}
	if got.SinceConverged < 0 {
		t.Fatal("expected last_converged_at to be stamped")
	}
}

func TestDetector_OscillationIsUnstable(t *testing.T) {
	d := New(DefaultConfig(), nil, newMemStore())
	for i := 0; i < 24; i++ {
		v := 0.8
		if i%2 == 1 {
			v = 0.6
		}
		d.Record(snapshotWithScore(v, time.Unix(int64(i), 0)))
	}
	got := d.Analyze()
	if got.State != domain.StateUnstable {
		t.Fatalf("expected unstable for an oscillating window, got %v (oscillations %d)", got.State, got.Oscillations)
	}
	if got.Confidence < 0.7 {
		t.Fatalf("expected unstable confidence >= 0.7, got %.4f", got.Confidence)
	}
}

func TestDetector_RiseThenDeclineDiverges(t *testing.T) {
	d := New(DefaultConfig(), nil, newMemStore())

	at := time.Unix(1_700_000_000, 0)
	for i := 0; i < 30; i++ {
		v := 0.5 + (0.8-0.5)*float64(i)/29
		d.Record(snapshotWithScore(v, at.Add(time.Duration(i)*time.Minute)))
	}
	d.CreateCheckpoint("pre-decline", domain.StrategyThompson, 0.1, nil)

	for i := 0; i < 10; i++ {
		v := 0.8 - (0.8-0.4)*float64(i+1)/10
		d.Record(snapshotWithScore(v, at.Add(time.Duration(30+i)*time.Minute)))
	}

	got := d.Analyze()
	if got.State != domain.StateDiverging {
		t.Fatalf("expected diverging after the decline, got %v (trend %.6f)", got.State, got.Trend)
	}
	if dec := d.ShouldApplyChange(0.0, 0.1); dec.Kind != domain.ChangePostpone {
		t.Fatalf("diverging with zero expected improvement should postpone, got %v", dec.Kind)
	}
	if dec := d.ShouldApplyChange(0.1, 0.1); dec.Kind != domain.ChangeApply {
		t.Fatalf("diverging with positive expected improvement should apply, got %v", dec.Kind)
	}
	if _, ok := d.FindBestCheckpoint(); !ok {
		t.Fatal("expected the pre-decline checkpoint to be retained")
	}
}

func TestDetector_ShouldApplyChangePerState(t *testing.T) {
	cases := []struct {
		state domain.ConvergenceState
		exp   float64
		want  domain.ChangeDecisionKind
	}{
		{domain.StateConverged, 0.001, domain.ChangeReject},
		{domain.StateConverged, 0.5, domain.ChangeExperiment},
		{domain.StateUnstable, 0.5, domain.ChangePostpone},
		{domain.StateExploring, 0.0, domain.ChangeApply},
		{domain.StateConverging, 0.5, domain.ChangeExperiment},
		{domain.StateConverging, 0.0, domain.ChangePostpone},
		{domain.StateUnknown, 0.5, domain.ChangePostpone},
	}
	for _, c := range cases {
		d := New(DefaultConfig(), nil, newMemStore())
		d.state = c.state
		got := d.ShouldApplyChange(c.exp, 0.1)
		if got.Kind != c.want {
			t.Errorf("state %v exp %.3f: got %v, want %v", c.state, c.exp, got.Kind, c.want)
		}
	}
}

func TestDetector_KellyBoundaries(t *testing.T) {
	d := New(DefaultConfig(), nil, newMemStore())

	if got := d.KellyDecision(0.1, 1.0); got.Kind != domain.ChangeApply {
		t.Fatalf("kelly with certain win should apply, got %v", got.Kind)
	}
	if got := d.KellyDecision(-0.1, 0.9); got.Kind != domain.ChangeReject {
		t.Fatalf("kelly with negative improvement should reject, got %v", got.Kind)
	}
	if got := d.KellyDecision(0.0, 0.5); got.Kind != domain.ChangeReject {
		t.Fatalf("kelly with zero improvement should reject, got %v", got.Kind)
	}

	got := d.KellyDecision(0.012, 0.6)
	if got.Kind != domain.ChangeExperiment {
		t.Fatalf("kelly with modest edge should experiment, got %v", got.Kind)
	}
	if got.Scale <= 0 || got.Scale >= 0.5 {
		t.Fatalf("experiment scale should be the kelly fraction in (0, 0.5), got %.4f", got.Scale)
	}
}

func TestDetector_CheckpointRetentionKeepsTopByScore(t *testing.T) {
	d := New(DefaultConfig(), nil, newMemStore())
	at := time.Unix(1_700_000_000, 0)

	for i := 0; i < 30; i++ {
		score := float64(i) / 30
		d.Record(snapshotWithScore(score, at.Add(time.Duration(i)*time.Minute)))
		d.CreateCheckpoint("sweep", domain.StrategyThompson, 0.1, nil)
	}

	if got := d.CheckpointCount(); got != maxCheckpoints {
		t.Fatalf("expected %d retained checkpoints, got %d", maxCheckpoints, got)
	}
	best, ok := d.FindBestCheckpoint()
	if !ok {
		t.Fatal("expected a best checkpoint")
	}
	if best.Score < float64(29)/30-1e-9 {
		t.Fatalf("expected the highest-scoring checkpoint retained, got score %.4f", best.Score)
	}
	// The 10 lowest-scoring checkpoints must have been evicted.
	for _, cp := range d.Checkpoints() {
		if cp.Score < float64(10)/30-1e-9 {
			t.Fatalf("low-scoring checkpoint %.4f should have been evicted", cp.Score)
		}
	}
}

func TestDetector_FindLastGoodCheckpoint(t *testing.T) {
	d := New(DefaultConfig(), nil, newMemStore())
	at := time.Unix(1_700_000_000, 0)

	d.Record(snapshotWithScore(0.9, at))
	d.CreateCheckpoint("high", domain.StrategyThompson, 0.1, nil)
	d.Record(snapshotWithScore(0.3, at.Add(time.Minute)))
	d.CreateCheckpoint("low", domain.StrategyThompson, 0.1, nil)

	cp, ok := d.FindLastGoodCheckpoint(0.5)
	if !ok {
		t.Fatal("expected a checkpoint with score >= 0.5")
	}
	if cp.Reason != "high" {
		t.Fatalf("expected the high-scoring checkpoint, got %q (score %.3f)", cp.Reason, cp.Score)
	}
	if _, ok := d.FindLastGoodCheckpoint(0.95); ok {
		t.Fatal("expected no checkpoint above 0.95")
	}
}

func TestDetector_PersistsAndReloads(t *testing.T) {
	store := newMemStore()
	now := time.Unix(1_700_000_000, 0)
	cfg := DefaultConfig()
	cfg.Now = fixedClock(now)
	d := New(cfg, nil, store)

	for i := 0; i < 25; i++ {
		d.Record(snapshotWithScore(0.7, now.Add(time.Duration(i)*time.Minute)))
	}
	d.CreateCheckpoint("steady", domain.StrategyUCB, 0.05, map[domain.HyperparameterId]float64{
		domain.TunerExplorationRate: 0.12,
	})
	if err := d.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	reloaded := New(cfg, nil, store)
	want := d.Analyze()
	got := reloaded.Analyze()
	if got.State != want.State {
		t.Fatalf("reloaded state %v, want %v", got.State, want.State)
	}
	if math.Abs(got.Variance-want.Variance) > 1e-12 {
		t.Fatalf("reloaded variance %.9f, want %.9f", got.Variance, want.Variance)
	}
	cp, ok := reloaded.FindBestCheckpoint()
	if !ok {
		t.Fatal("expected the checkpoint to survive reload")
	}
	if cp.Strategy != domain.StrategyUCB || math.Abs(cp.ParameterSnapshot[domain.TunerExplorationRate]-0.12) > 1e-9 {
		t.Fatalf("reloaded checkpoint lost payload: %+v", cp)
	}
}
