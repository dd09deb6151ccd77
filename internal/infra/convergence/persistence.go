package convergence

import (
	"encoding/json"
	"log"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
)

const stateKey = "detector.state"
const stateVersion byte = 1

type wireSnapshot struct {
	Quality      float64 `json:"quality"`
	Latency      float64 `json:"latency"`
	Satisfaction float64 `json:"satisfaction"`
	ErrorRate    float64 `json:"error_rate"`
	Efficiency   float64 `json:"efficiency"`
	Timestamp    int64   `json:"timestamp"`
}

type wireCheckpoint struct {
	ID           string             `json:"id"`
	Timestamp    int64              `json:"timestamp"`
	Strategy     int                `json:"strategy"`
	LearningRate float64            `json:"learning_rate"`
	Metrics      wireSnapshot       `json:"metrics"`
	Params       map[string]float64 `json:"params"`
	Reason       string             `json:"reason"`
	Score        float64            `json:"score"`
}

type wireState struct {
	Window          []wireSnapshot   `json:"window"`
	Checkpoints     []wireCheckpoint `json:"checkpoints"`
	LastConvergedAt int64            `json:"last_converged_at"`
}

func toWireSnapshot(s domain.MetricSnapshot) wireSnapshot {
	return wireSnapshot{
		Quality:      s.CompositeQuality,
		Latency:      s.Latency,
		Satisfaction: s.UserSatisfaction,
		ErrorRate:    s.ErrorRate,
		Efficiency:   s.ResourceEfficiency,
		Timestamp:    s.Timestamp.UnixNano(),
	}
}

func fromWireSnapshot(w wireSnapshot) domain.MetricSnapshot {
	return domain.MetricSnapshot{
		CompositeQuality:   w.Quality,
		Latency:            w.Latency,
		UserSatisfaction:   w.Satisfaction,
		ErrorRate:          w.ErrorRate,
		ResourceEfficiency: w.Efficiency,
		Timestamp:          time.Unix(0, w.Timestamp),
	}
}

// flushLocked serializes the window, checkpoint set, and convergence
// stamp. Must be called with mu held.
func (d *Detector) flushLocked() error {
	if d.store == nil {
		return nil
	}
	ws := wireState{
		Window:      make([]wireSnapshot, 0, len(d.window)),
		Checkpoints: make([]wireCheckpoint, 0, d.checkpoints.len()),
	}
	for _, s := range d.window {
		ws.Window = append(ws.Window, toWireSnapshot(s))
	}
	for _, cp := range d.checkpoints.all() {
		params := make(map[string]float64, len(cp.ParameterSnapshot))
		for id, v := range cp.ParameterSnapshot {
			params[id.String()] = v
		}
		ws.Checkpoints = append(ws.Checkpoints, wireCheckpoint{
			ID:           cp.ID,
			Timestamp:    cp.Timestamp.UnixNano(),
			Strategy:     int(cp.Strategy),
			LearningRate: cp.LearningRate,
			Metrics:      toWireSnapshot(cp.PerformanceMetrics),
			Params:       params,
			Reason:       cp.Reason,
			Score:        cp.Score,
		})
	}
	if !d.lastConvergedAt.IsZero() {
		ws.LastConvergedAt = d.lastConvergedAt.UnixNano()
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	blob := make([]byte, 0, len(payload)+1)
	blob = append(blob, stateVersion)
	blob = append(blob, payload...)
	return d.store.Put(stateKey, blob)
}

// load restores persisted window and checkpoints. Corruption or an
// unknown version is logged once and the detector keeps its defaults.
func (d *Detector) load() {
	if d.store == nil {
		return
	}
	blob, ok, err := d.store.Get(stateKey)
	if err != nil || !ok || len(blob) == 0 {
		return
	}
	if blob[0] != stateVersion {
		log.Printf("detector: persisted state has unknown version %d, resetting to defaults", blob[0])
		return
	}
	var ws wireState
	if err := json.Unmarshal(blob[1:], &ws); err != nil {
		log.Printf("detector: persisted state is corrupt (%v), resetting to defaults", err)
		return
	}
	byName := make(map[string]domain.HyperparameterId)
	for _, id := range domain.AllHyperparameterIds() {
		byName[id.String()] = id
	}
	for _, w := range ws.Window {
		d.window = append(d.window, fromWireSnapshot(w))
	}
	for _, wc := range ws.Checkpoints {
		params := make(map[domain.HyperparameterId]float64, len(wc.Params))
		for name, v := range wc.Params {
			if id, ok := byName[name]; ok {
				params[id] = v
			}
		}
		d.checkpoints.add(domain.Checkpoint{
			ID:                 wc.ID,
			Timestamp:          time.Unix(0, wc.Timestamp),
			Strategy:           domain.OptimizationStrategy(wc.Strategy),
			LearningRate:       wc.LearningRate,
			PerformanceMetrics: fromWireSnapshot(wc.Metrics),
			ParameterSnapshot:  params,
			Reason:             wc.Reason,
			Score:              wc.Score,
		})
	}
	if ws.LastConvergedAt != 0 {
		d.lastConvergedAt = time.Unix(0, ws.LastConvergedAt)
	}
	if len(d.window) > 0 {
		d.state = d.analyzeLocked().State
	}
}
