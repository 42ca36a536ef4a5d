package history

import (
	"context"
	"time"
)

// List bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Entry is a single journal row.
type Entry struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	Roll         string    `json:"roll,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Source       string    `json:"source"`
	SessionID    string    `json:"session_id,omitempty"`
	RegistrySize int       `json:"registry_size"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filter narrows List results.
type Filter struct {
	// Roll restricts to one roll when non-empty.
	Roll string

	// Kind restricts to one activity kind when non-empty.
	Kind string

	// Limit caps the result (DefaultLimit when <= 0, at most MaxLimit).
	Limit int
}

// Repository stores and queries journal entries.
type Repository interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
