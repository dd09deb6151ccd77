package domain

import "errors"

// Sentinel errors for persistence and rollback failures. Apart from
// Flush, which returns the BlobStore's write error, the core components'
// public operations return no errors.
var (
	// ErrBlobCorrupt describes a stored blob whose version is unknown or
	// whose payload fails to unmarshal. No function in this module
	// returns it: each component's load logs the problem and keeps its
	// defaults.
	ErrBlobCorrupt = errors.New("govcore: persisted blob is corrupt or has an unknown version")

	// ErrNoCheckpoints describes a rollback requested with no checkpoint
	// available. No function in this module returns it: the Orchestrator
	// downgrades a rollback decision without a target to ActionContinue.
	ErrNoCheckpoints = errors.New("govcore: no checkpoints available for rollback")
)
