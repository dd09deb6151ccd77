package scheduler

import (
	"math"
	"testing"
)

// TestHourPattern_UpdateWeighting locks the exact observation weighting
// observedWeight = learningRate*(1-confidence) + (1-learningRate). The
// observation dominates the prior at low confidence and keeps a floor
// of (1-learningRate) even at the confidence cap; any change to this
// arithmetic must fail here rather than shift pattern learning
// silently.
func TestHourPattern_UpdateWeighting(t *testing.T) {
	cases := []struct {
		name         string
		learningRate float64
		confidence   float64
		expected     float64
		observed     float64
		want         float64
	}{
		{"zero confidence adopts observation", 0.1, 0.0, 0.5, 1.0, 1.0},
		{"half confidence still observation-heavy", 0.1, 0.5, 0.5, 1.0, 1.2 / 1.45},
		{"capped confidence keeps observation floor", 0.1, 0.95, 0.5, 1.0, 1.38 / 1.855},
		{"high learning rate", 0.5, 0.5, 0.5, 1.0, 1.0 / 1.25},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := HourPattern{Hour: 10, ExpectedActivity: c.expected, Confidence: c.confidence}
			p.update(c.observed, c.learningRate)
			if math.Abs(p.ExpectedActivity-c.want) > 1e-9 {
				t.Fatalf("blended activity = %.9f, want %.9f", p.ExpectedActivity, c.want)
			}
		})
	}
}

func TestHourPattern_ConfidenceGrowthCapsAt095(t *testing.T) {
	p := seedPattern(10)
	if p.Confidence != 0 {
		t.Fatalf("seeded pattern should start at zero confidence, got %.4f", p.Confidence)
	}

	p.update(0.8, 0.1)
	if math.Abs(p.Confidence-0.05) > 1e-9 {
		t.Fatalf("first update should grow confidence to 0.05, got %.6f", p.Confidence)
	}

	for i := 0; i < 500; i++ {
		p.update(0.8, 0.1)
	}
	if p.Confidence > 0.95+1e-9 {
		t.Fatalf("confidence must cap at 0.95, got %.6f", p.Confidence)
	}
	if p.SampleCount != 501 {
		t.Fatalf("sample count should track updates, got %d", p.SampleCount)
	}
}

func TestSeedPattern_TimeOfDayDefaults(t *testing.T) {
	if got := seedPattern(3).ExpectedActivity; got >= 0.2 {
		t.Fatalf("night hours should seed near idle, got %.2f", got)
	}
	if got := seedPattern(10).ExpectedActivity; got < 0.7 {
		t.Fatalf("mid-morning should seed high, got %.2f", got)
	}
	if got := seedPattern(15).ExpectedActivity; got < 0.7 {
		t.Fatalf("afternoon should seed high, got %.2f", got)
	}
}
