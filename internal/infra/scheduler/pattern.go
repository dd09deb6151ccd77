package scheduler

// HourPattern is the learned activity expectation for one hour of the
// day.
type HourPattern struct {
	Hour             int
	ExpectedActivity float64 // [0,1]
	Confidence       float64 // [0, 0.95]
	SampleCount      int64
}

// seedPattern returns the time-of-day default for hour: nights idle,
// mornings and afternoons busy, evenings moderate.
func seedPattern(hour int) HourPattern {
	var expected float64
	switch {
	case hour < 6:
		expected = 0.05 // night: idle
	case hour < 9:
		expected = 0.5 // early morning ramp-up
	case hour < 12:
		expected = 0.8 // morning: high
	case hour < 14:
		expected = 0.6 // lunch dip
	case hour < 18:
		expected = 0.8 // afternoon: high
	case hour < 22:
		expected = 0.5 // evening: moderate
	default:
		expected = 0.2 // late evening wind-down
	}
	return HourPattern{Hour: hour, ExpectedActivity: expected}
}

// update folds an observed activity score into the pattern.
//
// The observation weight learningRate*(1-confidence) + (1-learningRate)
// intentionally dominates the prior while confidence is low and keeps a
// floor of (1-learningRate) even at full confidence; pattern_test.go
// locks this exact weighting so it cannot change silently.
func (p *HourPattern) update(observed, learningRate float64) {
	priorWeight := p.Confidence
	observedWeight := learningRate*(1-p.Confidence) + (1 - learningRate)

	total := priorWeight + observedWeight
	if total > 0 {
		p.ExpectedActivity = (p.ExpectedActivity*priorWeight + observed*observedWeight) / total
	}
	if p.ExpectedActivity < 0 {
		p.ExpectedActivity = 0
	}
	if p.ExpectedActivity > 1 {
		p.ExpectedActivity = 1
	}

	p.Confidence += (1 - p.Confidence) * 0.05
	if p.Confidence > 0.95 {
		p.Confidence = 0.95
	}
	p.SampleCount++
}
