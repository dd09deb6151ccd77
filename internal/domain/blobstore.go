package domain

// BlobStore is the governance core's persistence capability. The core
// treats it as a namespaced key/value store with no transactional
// guarantees beyond last-write-wins per key.
//
// Keys used by the core's components: "tuner.state", "bandit.state",
// "feedback.state", "detector.state", "meta.state", "scheduler.state".
type BlobStore interface {
	// Get returns the stored bytes for key, or ok=false if absent.
	// err is non-nil only for I/O-level failures (not "not found").
	Get(key string) (value []byte, ok bool, err error)

	// Put stores value under key, overwriting any previous value.
	Put(key string, value []byte) error
}
