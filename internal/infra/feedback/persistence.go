package feedback

import (
	"encoding/json"
	"log"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
)

const stateKey = "feedback.state"
const stateVersion byte = 1

type wireEvent struct {
	Source       int     `json:"source"`
	RawValue     float64 `json:"raw_value"`
	Normalized   float64 `json:"normalized"`
	Confidence   float64 `json:"confidence"`
	Timestamp    int64   `json:"timestamp"`
	Model        string  `json:"model,omitempty"`
	Task         string  `json:"task,omitempty"`
	Conversation string  `json:"conversation,omitempty"`
	Message      string  `json:"message,omitempty"`
	Session      string  `json:"session,omitempty"`
}

type wireState struct {
	Weights map[string]float64 `json:"weights"`
	Events  []wireEvent        `json:"events"`
}

// flushLocked serializes the learned source weights and the event set
// into a versioned blob. Must be called with mu held.
func (a *Aggregator) flushLocked() error {
	if a.store == nil {
		return nil
	}
	ws := wireState{
		Weights: make(map[string]float64, len(a.sourceWeight)),
		Events:  make([]wireEvent, 0, len(a.events)),
	}
	for src, w := range a.sourceWeight {
		ws.Weights[src.String()] = w
	}
	for _, e := range a.events {
		ws.Events = append(ws.Events, wireEvent{
			Source:       int(e.Source),
			RawValue:     e.RawValue,
			Normalized:   e.NormalizedValue,
			Confidence:   e.Confidence,
			Timestamp:    e.Timestamp.UnixNano(),
			Model:        e.Context.Model,
			Task:         e.Context.Task,
			Conversation: e.Context.Conversation,
			Message:      e.Context.Message,
			Session:      e.Context.Session,
		})
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	blob := make([]byte, 0, len(payload)+1)
	blob = append(blob, stateVersion)
	blob = append(blob, payload...)
	return a.store.Put(stateKey, blob)
}

// Flush forces a persistence write regardless of the record cadence.
func (a *Aggregator) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

// load restores persisted weights and events. Corruption or an unknown
// version is logged once and the aggregator keeps its fresh defaults.
func (a *Aggregator) load() {
	if a.store == nil {
		return
	}
	blob, ok, err := a.store.Get(stateKey)
	if err != nil || !ok || len(blob) == 0 {
		return
	}
	if blob[0] != stateVersion {
		log.Printf("feedback: persisted state has unknown version %d, resetting to defaults", blob[0])
		return
	}
	var ws wireState
	if err := json.Unmarshal(blob[1:], &ws); err != nil {
		log.Printf("feedback: persisted state is corrupt (%v), resetting to defaults", err)
		return
	}
	byName := make(map[string]domain.FeedbackSource, len(a.sourceWeight))
	for _, src := range domain.AllFeedbackSources() {
		byName[src.String()] = src
	}
	for name, w := range ws.Weights {
		if src, ok := byName[name]; ok {
			a.sourceWeight[src] = clamp(w, 0.01, 2.0)
		}
	}
	for _, we := range ws.Events {
		src := domain.FeedbackSource(we.Source)
		if _, ok := domain.FeedbackSourceSpecs[src]; !ok {
			continue
		}
		a.recordLocked(domain.FeedbackEvent{
			Source:          src,
			RawValue:        we.RawValue,
			NormalizedValue: we.Normalized,
			Confidence:      we.Confidence,
			Timestamp:       time.Unix(0, we.Timestamp),
			Context: domain.FeedbackContext{
				Model:        we.Model,
				Task:         we.Task,
				Conversation: we.Conversation,
				Message:      we.Message,
				Session:      we.Session,
			},
		})
	}
	// Loading replayed recordLocked and bumped the cadence counter;
	// reset it so the first post-restart flush lands on schedule.
	a.recordsSinceFlush = 0
}
