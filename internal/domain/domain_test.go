package domain

import (
	"math"
	"testing"
)

func TestHyperparameterSpecs_CoverEveryIdWithSaneRanges(t *testing.T) {
	for _, id := range AllHyperparameterIds() {
		spec, ok := HyperparameterSpecs[id]
		if !ok {
			t.Fatalf("id %v has no spec entry", id)
		}
		if spec.Lo > spec.Hi {
			t.Errorf("id %v: lo %.4f > hi %.4f", id, spec.Lo, spec.Hi)
		}
		if spec.Default < spec.Lo || spec.Default > spec.Hi {
			t.Errorf("id %v: default %.4f outside [%.4f, %.4f]", id, spec.Default, spec.Lo, spec.Hi)
		}
		if id.String() == "unknown" {
			t.Errorf("id %v has no name", int(id))
		}
	}
}

func TestNormalizationGroups_DefaultsSumToOne(t *testing.T) {
	if len(QualityCompositeWeights) != 4 {
		t.Fatalf("quality composite group should have 4 members, got %d", len(QualityCompositeWeights))
	}
	if len(SelectionWeights) != 5 {
		t.Fatalf("selection group should have 5 members, got %d", len(SelectionWeights))
	}
	for _, g := range NormalizationGroups {
		sum := 0.0
		for _, id := range g {
			sum += HyperparameterSpecs[id].Default
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("group %v defaults sum to %.6f, want 1", g, sum)
		}
	}
}

func TestGroupOf(t *testing.T) {
	if g := GroupOf(QualityWeightSpeed); len(g) != 4 {
		t.Fatalf("QualityWeightSpeed should resolve to the 4-member group, got %v", g)
	}
	if g := GroupOf(SelectionWeightRecency); len(g) != 5 {
		t.Fatalf("SelectionWeightRecency should resolve to the 5-member group, got %v", g)
	}
	if g := GroupOf(TunerExplorationRate); g != nil {
		t.Fatalf("TunerExplorationRate belongs to no group, got %v", g)
	}
}

func TestHyperparameterIdFromString_RoundTrips(t *testing.T) {
	for _, id := range AllHyperparameterIds() {
		got, ok := HyperparameterIdFromString(id.String())
		if !ok || got != id {
			t.Errorf("round trip failed for %v (got %v, ok %v)", id, got, ok)
		}
	}
	if _, ok := HyperparameterIdFromString("nope"); ok {
		t.Error("unknown name must not resolve")
	}
}

func TestFeedbackSourceSpecs_CoverEverySource(t *testing.T) {
	sources := AllFeedbackSources()
	if len(sources) != 17 {
		t.Fatalf("expected 17 feedback sources, got %d", len(sources))
	}
	for _, src := range sources {
		spec, ok := FeedbackSourceSpecs[src]
		if !ok {
			t.Fatalf("source %v has no spec entry", src)
		}
		if spec.DefaultWeight <= 0 {
			t.Errorf("source %v has non-positive default weight", src)
		}
		if spec.DefaultNormalized < 0 || spec.DefaultNormalized > 1 {
			t.Errorf("source %v default normalized %.2f outside [0,1]", src, spec.DefaultNormalized)
		}
	}
}

// TestEditBeforeSendContract locks the numeric contract carried over
// from the source system: implicit category, higher is NOT better,
// default normalized 0.3.
func TestEditBeforeSendContract(t *testing.T) {
	spec := FeedbackSourceSpecs[SourceEditBeforeSend]
	if spec.Category != CategoryImplicit {
		t.Errorf("edit_before_send category = %v, want implicit", spec.Category)
	}
	if spec.HigherIsBetter {
		t.Error("edit_before_send must have higher_is_better = false")
	}
	if math.Abs(spec.DefaultNormalized-0.3) > 1e-9 {
		t.Errorf("edit_before_send default normalized = %.2f, want 0.3", spec.DefaultNormalized)
	}
}

func TestDetectFromQuery(t *testing.T) {
	cases := []struct {
		query string
		want  TaskCategory
	}{
		{"I hit a stack trace when running this", TaskDebugging},
		{"please review this code for style", TaskCodeReview},
		{"refactor the payment module", TaskRefactoring},
		{"write a test for the parser", TaskTesting},
		{"implement a rate limiter", TaskCodeGeneration},
		{"translate this to French", TaskTranslation},
		{"summarize this meeting", TaskSummarization},
		{"analyze this data from the csv", TaskDataAnalysis},
		{"make a plan for the migration", TaskPlanning},
		{"write a story about a lighthouse", TaskCreativeWriting},
		{"explain how garbage collection works", TaskExplanation},
		{"is the sky blue?", TaskQuestionAnswering},
		{"hello there", TaskGeneral},
	}
	for _, c := range cases {
		if got := DetectFromQuery(c.query); got != c.want {
			t.Errorf("DetectFromQuery(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func TestTimeClusterOf(t *testing.T) {
	cases := []struct {
		hour int
		want TimeCluster
	}{
		{0, TimeNight}, {5, TimeNight},
		{6, TimeMorning}, {11, TimeMorning},
		{12, TimeAfternoon}, {17, TimeAfternoon},
		{18, TimeEvening}, {23, TimeEvening},
	}
	for _, c := range cases {
		if got := TimeClusterOf(c.hour); got != c.want {
			t.Errorf("TimeClusterOf(%d) = %v, want %v", c.hour, got, c.want)
		}
	}
}

func TestResourceTierOf(t *testing.T) {
	if got := ResourceTierOf(1.0, 2.0, 6.0); got != ResourceLow {
		t.Errorf("1GB available = %v, want low", got)
	}
	if got := ResourceTierOf(4.0, 2.0, 6.0); got != ResourceMedium {
		t.Errorf("4GB available = %v, want medium", got)
	}
	if got := ResourceTierOf(12.0, 2.0, 6.0); got != ResourceHigh {
		t.Errorf("12GB available = %v, want high", got)
	}
}

func TestContext_HashStableAndRecentTasksCapped(t *testing.T) {
	recent := []TaskCategory{TaskDebugging, TaskTesting, TaskPlanning, TaskResearch, TaskGeneral}
	ctx := NewContext(TaskCodeGeneration, TimeMorning, ResourceHigh, recent, UrgencyNormal, ComplexityModerate)
	if len(ctx.RecentTasks) != 3 {
		t.Fatalf("recent tasks must cap at 3, got %d", len(ctx.RecentTasks))
	}
	if ctx.RecentTasks[0] != TaskPlanning {
		t.Fatalf("cap must keep the most recent tasks, got %v", ctx.RecentTasks)
	}

	same := NewContext(TaskCodeGeneration, TimeMorning, ResourceHigh, recent, UrgencyNormal, ComplexityModerate)
	if ctx.Hash() != same.Hash() {
		t.Fatal("identical contexts must hash identically")
	}
	different := NewContext(TaskCodeGeneration, TimeEvening, ResourceHigh, recent, UrgencyNormal, ComplexityModerate)
	if ctx.Hash() == different.Hash() {
		t.Fatal("differing contexts must hash differently")
	}
}

func TestMetricSnapshot_OverallScore(t *testing.T) {
	m := MetricSnapshot{
		CompositeQuality:   1,
		UserSatisfaction:   1,
		ResourceEfficiency: 1,
		ErrorRate:          0,
	}
	if got := m.OverallScore(); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("perfect snapshot score = %.4f, want 1", got)
	}

	m = MetricSnapshot{CompositeQuality: 0.5, UserSatisfaction: 0.8, ResourceEfficiency: 0.6, ErrorRate: 0.1}
	want := 0.40*0.5 + 0.30*0.8 + 0.20*0.6 + 0.10*0.9
	if got := m.OverallScore(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("score = %.4f, want %.4f", got, want)
	}
}

func TestConvergenceState_Policies(t *testing.T) {
	if !StateExploring.AcceptsChanges() || !StateDiverging.AcceptsChanges() {
		t.Error("exploring and diverging should accept changes")
	}
	if StateConverged.AcceptsChanges() || StateUnstable.AcceptsChanges() {
		t.Error("converged and unstable should not accept changes freely")
	}
	if StateUnstable.ExplorationMultiplier() != 0 {
		t.Error("unstable should suppress exploration entirely")
	}
	if StateExploring.ExplorationMultiplier() != 1 {
		t.Error("exploring should not dampen exploration")
	}
}
