package convergence

import (
	"github.com/google/uuid"

	"github.com/tutu-network/govcore/internal/domain"
)

const maxCheckpoints = 20

// checkpointSet keeps the top-N checkpoints by score in a binary
// min-heap: the root is always the lowest-scoring checkpoint, so
// admitting a better one is pop-min + push.
type checkpointSet struct {
	heap []domain.Checkpoint
	max  int
}

func newCheckpointSet(max int) *checkpointSet {
	if max <= 0 {
		max = maxCheckpoints
	}
	return &checkpointSet{max: max}
}

// add admits cp, evicting the lowest-scoring checkpoint if the set is
// full and cp scores higher. Returns false if cp was not admitted.
func (cs *checkpointSet) add(cp domain.Checkpoint) bool {
	if len(cs.heap) < cs.max {
		cs.heap = append(cs.heap, cp)
		cs.siftUp(len(cs.heap) - 1)
		return true
	}
	if cp.Score <= cs.heap[0].Score {
		return false
	}
	cs.heap[0] = cp
	cs.siftDown(0)
	return true
}

// best returns the highest-scoring checkpoint. With at most 20 elements
// a linear scan beats maintaining a second heap.
func (cs *checkpointSet) best() (domain.Checkpoint, bool) {
	if len(cs.heap) == 0 {
		return domain.Checkpoint{}, false
	}
	bestIdx := 0
	for i := 1; i < len(cs.heap); i++ {
		if cs.heap[i].Score > cs.heap[bestIdx].Score {
			bestIdx = i
		}
	}
	return cs.heap[bestIdx], true
}

// lastGood returns the most recent checkpoint whose score is at least
// minScore.
func (cs *checkpointSet) lastGood(minScore float64) (domain.Checkpoint, bool) {
	var found domain.Checkpoint
	ok := false
	for _, cp := range cs.heap {
		if cp.Score < minScore {
			continue
		}
		if !ok || cp.Timestamp.After(found.Timestamp) {
			found = cp
			ok = true
		}
	}
	return found, ok
}

func (cs *checkpointSet) all() []domain.Checkpoint {
	out := make([]domain.Checkpoint, len(cs.heap))
	copy(out, cs.heap)
	return out
}

func (cs *checkpointSet) len() int { return len(cs.heap) }

func (cs *checkpointSet) less(i, j int) bool {
	if cs.heap[i].Score != cs.heap[j].Score {
		return cs.heap[i].Score < cs.heap[j].Score
	}
	// Tie-break: older checkpoints evict first.
	return cs.heap[i].Timestamp.Before(cs.heap[j].Timestamp)
}

func (cs *checkpointSet) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if cs.less(idx, parent) {
			cs.heap[idx], cs.heap[parent] = cs.heap[parent], cs.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

func (cs *checkpointSet) siftDown(idx int) {
	n := len(cs.heap)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2
		if left < n && cs.less(left, smallest) {
			smallest = left
		}
		if right < n && cs.less(right, smallest) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		cs.heap[idx], cs.heap[smallest] = cs.heap[smallest], cs.heap[idx]
		idx = smallest
	}
}

// CreateCheckpoint snapshots the caller's current strategy, learning
// rate, and parameter values together with the latest performance
// metrics, and admits it to the top-N retention set.
func (d *Detector) CreateCheckpoint(reason string, strategy domain.OptimizationStrategy, learningRate float64, params map[domain.HyperparameterId]float64) domain.Checkpoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	var metrics domain.MetricSnapshot
	score := 0.5
	if len(d.window) > 0 {
		metrics = d.window[len(d.window)-1]
		score = metrics.OverallScore()
	}
	snapshot := make(map[domain.HyperparameterId]float64, len(params))
	for id, v := range params {
		snapshot[id] = v
	}
	cp := domain.Checkpoint{
		ID:                 uuid.NewString(),
		Timestamp:          d.cfg.Now(),
		Strategy:           strategy,
		LearningRate:       learningRate,
		PerformanceMetrics: metrics,
		ParameterSnapshot:  snapshot,
		Reason:             reason,
		Score:              score,
	}
	d.checkpoints.add(cp)
	d.flushLocked()
	return cp
}

// FindBestCheckpoint returns the highest-scoring retained checkpoint.
func (d *Detector) FindBestCheckpoint() (domain.Checkpoint, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkpoints.best()
}

// FindLastGoodCheckpoint returns the most recent retained checkpoint
// scoring at least minScore. Pass 0 to accept any.
func (d *Detector) FindLastGoodCheckpoint(minScore float64) (domain.Checkpoint, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkpoints.lastGood(minScore)
}

// Checkpoints returns a copy of the retained checkpoint set.
func (d *Detector) Checkpoints() []domain.Checkpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkpoints.all()
}

// CheckpointCount returns the number of retained checkpoints.
func (d *Detector) CheckpointCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkpoints.len()
}
