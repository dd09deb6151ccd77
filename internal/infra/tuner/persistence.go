package tuner

import (
	"encoding/json"
	"log"

	"github.com/tutu-network/govcore/internal/domain"
)

const stateKey = "tuner.state"
const stateVersion byte = 1

// wireParam is the serialized form of an AdaptiveHyperparameter. History
// is intentionally dropped from the wire format — only the statistics
// needed to resume learning survive a restart.
type wireParam struct {
	Current                  float64 `json:"current"`
	Alpha                    float64 `json:"alpha"`
	Beta                     float64 `json:"beta"`
	N                        int64   `json:"n"`
	Mean                     float64 `json:"mean"`
	M2                       float64 `json:"m2"`
	ConsecutiveStableUpdates int     `json:"consecutive_stable_updates"`
}

type wireState struct {
	Params map[string]wireParam `json:"params"`
}

// flushLocked serializes the tuner's state into a versioned blob and
// writes it through the injected BlobStore. Must be called with mu held.
func (t *Tuner) flushLocked() error {
	if t.store == nil {
		return nil
	}
	ws := wireState{Params: make(map[string]wireParam, len(t.params))}
	for id, p := range t.params {
		ws.Params[id.String()] = wireParam{
			Current:                  p.Current,
			Alpha:                    p.Alpha,
			Beta:                     p.Beta,
			N:                        p.N,
			Mean:                     p.Mean,
			M2:                       p.M2,
			ConsecutiveStableUpdates: p.ConsecutiveStableUpdates,
		}
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	blob := make([]byte, 0, len(payload)+1)
	blob = append(blob, stateVersion)
	blob = append(blob, payload...)
	return t.store.Put(stateKey, blob)
}

// load restores state from the BlobStore if present. An unknown version
// or corrupt payload is logged once and the tuner keeps its freshly
// initialized defaults rather than propagating an error (no public
// operation on Tuner returns an error).
func (t *Tuner) load() {
	if t.store == nil {
		return
	}
	blob, ok, err := t.store.Get(stateKey)
	if err != nil || !ok || len(blob) == 0 {
		return
	}
	if blob[0] != stateVersion {
		log.Printf("tuner: persisted state has unknown version %d, resetting to defaults", blob[0])
		return
	}
	var ws wireState
	if err := json.Unmarshal(blob[1:], &ws); err != nil {
		log.Printf("tuner: persisted state is corrupt (%v), resetting to defaults", err)
		return
	}
	byName := make(map[string]domain.HyperparameterId, len(t.params))
	for id := range t.params {
		byName[id.String()] = id
	}
	for name, wp := range ws.Params {
		id, ok := byName[name]
		if !ok {
			continue
		}
		p := t.params[id]
		p.Current = wp.Current
		p.Alpha = wp.Alpha
		p.Beta = wp.Beta
		p.N = wp.N
		p.Mean = wp.Mean
		p.M2 = wp.M2
		p.ConsecutiveStableUpdates = wp.ConsecutiveStableUpdates
	}
}
