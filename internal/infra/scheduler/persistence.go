package scheduler

import (
	"encoding/json"
	"log"
	"time"
)

const stateKey = "scheduler.state"
const stateVersion byte = 1

type wirePattern struct {
	Hour        int     `json:"hour"`
	Expected    float64 `json:"expected"`
	Confidence  float64 `json:"confidence"`
	SampleCount int64   `json:"sample_count"`
}

type wireSample struct {
	Score     float64 `json:"score"`
	Timestamp int64   `json:"timestamp"`
}

type wireState struct {
	Patterns         []wirePattern `json:"patterns"`
	Samples          []wireSample  `json:"samples"`
	AdaptiveBaseline float64       `json:"adaptive_baseline"`
	AvgInterval      float64       `json:"avg_interval"`
	IntervalVariance float64       `json:"interval_variance"`
	EMAInited        bool          `json:"ema_inited"`
}

// flushLocked serializes the scheduler's learned state. Must be called
// with mu held.
func (s *Scheduler) flushLocked() error {
	if s.store == nil {
		return nil
	}
	ws := wireState{
		Patterns:         make([]wirePattern, 0, 24),
		AdaptiveBaseline: s.adaptiveBaseline,
		AvgInterval:      s.avgInterval,
		IntervalVariance: s.intervalVariance,
		EMAInited:        s.emaInited,
	}
	for _, p := range s.patterns {
		ws.Patterns = append(ws.Patterns, wirePattern{
			Hour:        p.Hour,
			Expected:    p.ExpectedActivity,
			Confidence:  p.Confidence,
			SampleCount: p.SampleCount,
		})
	}
	count := s.sampleCountLocked()
	// Oldest-first so reload replays them in order.
	idx := s.sIdx
	if !s.sFull {
		idx = 0
	}
	for i := 0; i < count; i++ {
		sample := s.samples[(idx+i)%maxSamples]
		ws.Samples = append(ws.Samples, wireSample{Score: sample.Score, Timestamp: sample.Timestamp.UnixNano()})
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	blob := make([]byte, 0, len(payload)+1)
	blob = append(blob, stateVersion)
	blob = append(blob, payload...)
	return s.store.Put(stateKey, blob)
}

// Flush forces a persistence write.
func (s *Scheduler) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// load restores persisted patterns, samples, and the adaptive baseline.
// Corruption or an unknown version is logged once and the scheduler
// keeps its seeded defaults.
func (s *Scheduler) load() {
	if s.store == nil {
		return
	}
	blob, ok, err := s.store.Get(stateKey)
	if err != nil || !ok || len(blob) == 0 {
		return
	}
	if blob[0] != stateVersion {
		log.Printf("scheduler: persisted state has unknown version %d, resetting to defaults", blob[0])
		return
	}
	var ws wireState
	if err := json.Unmarshal(blob[1:], &ws); err != nil {
		log.Printf("scheduler: persisted state is corrupt (%v), resetting to defaults", err)
		return
	}
	for _, wp := range ws.Patterns {
		if wp.Hour < 0 || wp.Hour > 23 {
			continue
		}
		s.patterns[wp.Hour] = HourPattern{
			Hour:             wp.Hour,
			ExpectedActivity: clamp(wp.Expected, 0, 1),
			Confidence:       clamp(wp.Confidence, 0, 0.95),
			SampleCount:      wp.SampleCount,
		}
	}
	for _, sm := range ws.Samples {
		s.samples[s.sIdx] = ActivitySample{Score: sm.Score, Timestamp: time.Unix(0, sm.Timestamp)}
		s.sIdx++
		if s.sIdx >= maxSamples {
			s.sIdx = 0
			s.sFull = true
		}
	}
	s.adaptiveBaseline = clamp(ws.AdaptiveBaseline, s.cfg.MinSeconds, s.cfg.MaxSeconds)
	s.avgInterval = ws.AvgInterval
	s.intervalVariance = ws.IntervalVariance
	s.emaInited = ws.EMAInited
}
