package fingerprint

import (
	"context"
	"time"
)

// ActivityKind names something that happened on the bridge.
type ActivityKind string

// Activity kinds.
const (
	ActivityEnrolled              ActivityKind = "enrolled"
	ActivityEnrollDuplicate       ActivityKind = "enroll_duplicate"
	ActivityEnrollDuplicateRoll   ActivityKind = "enroll_duplicate_roll"
	ActivityEnrollDuplicateFinger ActivityKind = "enroll_duplicate_finger"
	ActivityDeleted               ActivityKind = "deleted"
	ActivityEnrollRequested       ActivityKind = "enroll_requested"
	ActivityEnrollCancelled       ActivityKind = "enroll_cancelled"
	ActivityDeleteRequested       ActivityKind = "delete_requested"
)

// Activity sources.
const (
	SourceDevice = "device"
	SourceClient = "client"
)

// Activity is one journal-worthy event.
type Activity struct {
	Kind         ActivityKind
	Roll         string
	Detail       string
	Source       string
	SessionID    string
	RegistrySize int
	At           time.Time
}

// ActivitySink receives activities off the dispatch path.
// Sinks are called sequentially from a single goroutine.
type ActivitySink interface {
	RecordActivity(ctx context.Context, a Activity) error
}
