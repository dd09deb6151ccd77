package bandit

import (
	"encoding/json"
	"log"
)

const stateKey = "bandit.state"
const stateVersion byte = 1

type wireArmStats struct {
	Successes   float64 `json:"successes"`
	Failures    float64 `json:"failures"`
	TotalReward float64 `json:"total_reward"`
	PullCount   int64   `json:"pull_count"`
}

type wireState struct {
	Global     map[string]wireArmStats            `json:"global"`
	Context    map[string]map[string]wireArmStats `json:"context"`
	TotalPulls int64                               `json:"total_pulls"`
}

func toWire(a *armStats) wireArmStats {
	return wireArmStats{Successes: a.successes, Failures: a.failures, TotalReward: a.totalReward, PullCount: a.pullCount}
}

func fromWire(w wireArmStats) *armStats {
	return &armStats{successes: w.Successes, failures: w.Failures, totalReward: w.TotalReward, pullCount: w.PullCount}
}

// flushLocked serializes the bandit's learned state. Must be called
// with mu held.
func (b *Bandit) flushLocked() error {
	if b.store == nil {
		return nil
	}
	ws := wireState{
		Global:     make(map[string]wireArmStats, len(b.global)),
		Context:    make(map[string]map[string]wireArmStats, len(b.ctx)),
		TotalPulls: b.totalPulls,
	}
	for id, s := range b.global {
		ws.Global[id] = toWire(s)
	}
	for hash, bucket := range b.ctx {
		wb := make(map[string]wireArmStats, len(bucket))
		for id, s := range bucket {
			wb[id] = toWire(s)
		}
		ws.Context[hash] = wb
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	blob := make([]byte, 0, len(payload)+1)
	blob = append(blob, stateVersion)
	blob = append(blob, payload...)
	return b.store.Put(stateKey, blob)
}

// Flush forces a persistence write regardless of the pull cadence.
func (b *Bandit) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// load restores persisted statistics. Arms themselves must still be
// (re-)registered by the caller via RegisterArms/AddArm; stats for
// arms that are never re-registered are simply never consulted.
func (b *Bandit) load() {
	if b.store == nil {
		return
	}
	blob, ok, err := b.store.Get(stateKey)
	if err != nil || !ok || len(blob) == 0 {
		return
	}
	if blob[0] != stateVersion {
		log.Printf("bandit: persisted state has unknown version %d, resetting to defaults", blob[0])
		return
	}
	var ws wireState
	if err := json.Unmarshal(blob[1:], &ws); err != nil {
		log.Printf("bandit: persisted state is corrupt (%v), resetting to defaults", err)
		return
	}
	for id, w := range ws.Global {
		b.global[id] = fromWire(w)
		b.seen.Add(id)
	}
	for hash, bucket := range ws.Context {
		wb := make(map[string]*armStats, len(bucket))
		for id, w := range bucket {
			wb[id] = fromWire(w)
		}
		b.ctx[hash] = wb
		b.seen.Add(hash)
	}
	b.totalPulls = ws.TotalPulls
}
