package fingerprint

import "errors"

// Domain errors for the fingerprint bridge package.
var (
	// ErrMissingDependency is returned by NewController when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("fingerprint: missing dependency")

	// ErrActivityQueueFull is reported when activity sinks fall behind and
	// an entry is dropped.
	ErrActivityQueueFull = errors.New("fingerprint: activity queue full")
)
