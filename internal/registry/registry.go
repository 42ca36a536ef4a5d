package registry

import (
	"errors"
	"io/fs"
	"strings"
	"sync"
	"time"
)

// Logger is the logging surface the registry needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// quarantiner is implemented by stores that can move a corrupt document aside.
type quarantiner interface {
	Quarantine() (string, error)
}

// Registry is the authoritative in-memory sequence of enrolled identities.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - A mutation and its persist happen under one lock, so the document
//     never lags a completed Add or Remove.
type Registry struct {
	store   Store
	logger  Logger
	records []UserRecord
	mu      sync.RWMutex
}

// New creates an empty registry backed by store. Call Load to read it.
func New(store Store, logger Logger) *Registry {
	return &Registry{
		store:   store,
		logger:  logger,
		records: []UserRecord{},
	}
}

// Load replaces the in-memory sequence with the persisted one.
//
// A missing document yields an empty registry. A corrupt document is
// quarantined (when the store supports it) and also yields an empty
// registry. Neither case is reported to the caller.
func (r *Registry) Load() {
	records, err := r.store.Load()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		if records == nil {
			records = []UserRecord{}
		}
		r.records = records
		r.logInfo("registry loaded", "users", len(records))
		for _, rec := range records {
			if rec.EnrolledAt.Unparsed() {
				r.logWarn("keeping unrecognised enrolment date verbatim", "roll", rec.Roll, "date", rec.EnrolledAt.String())
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		r.records = []UserRecord{}
		r.logInfo("registry document not found, starting empty")
	default:
		r.records = []UserRecord{}
		r.logWarn("registry document unreadable, starting empty", "error", err)
		if q, ok := r.store.(quarantiner); ok && errors.Is(err, ErrCorruptDocument) {
			moved, qErr := q.Quarantine()
			if qErr != nil {
				r.logError("failed to quarantine corrupt registry document", "error", qErr)
			} else if moved != "" {
				r.logWarn("corrupt registry document preserved", "path", moved)
			}
		}
	}
}

// AllocateID returns the smallest positive integer not used as an ID_No.
func (r *Registry) AllocateID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allocateIDLocked()
}

func (r *Registry) allocateIDLocked() int {
	used := make(map[int]struct{}, len(r.records))
	for _, rec := range r.records {
		if rec.ID > 0 {
			used[rec.ID] = struct{}{}
		}
	}
	for id := 1; ; id++ {
		if _, taken := used[id]; !taken {
			return id
		}
	}
}

// Add enrols roll with the next free ID and persists the registry.
//
// Returns:
//   - UserRecord: The new record
//   - error: ErrAlreadyExists if the roll is enrolled (no write happens),
//     ErrEmptyRoll if roll is blank
func (r *Registry) Add(roll string, at time.Time) (UserRecord, error) {
	roll = strings.TrimSpace(roll)
	if roll == "" {
		return UserRecord{}, ErrEmptyRoll
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.Roll == roll {
			return rec, ErrAlreadyExists
		}
	}

	rec := UserRecord{
		ID:         r.allocateIDLocked(),
		Roll:       roll,
		EnrolledAt: NewTimestamp(at),
	}
	r.records = append(r.records, rec)
	r.persistLocked()

	return rec, nil
}

// Remove deletes every record whose roll matches and persists only if
// membership changed. Reports whether anything was removed.
func (r *Registry) Remove(roll string) bool {
	roll = strings.TrimSpace(roll)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]UserRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.Roll != roll {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(r.records) {
		return false
	}

	r.records = kept
	r.persistLocked()
	return true
}

// Snapshot returns a copy of the records in insertion order. Never nil.
func (r *Registry) Snapshot() []UserRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]UserRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Count returns the number of enrolled records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Contains reports whether roll is enrolled.
func (r *Registry) Contains(roll string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.Roll == roll {
			return true
		}
	}
	return false
}

// Persist writes the full sequence to the store. Failures are logged and
// returned; the in-memory state is unaffected either way.
func (r *Registry) Persist() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.persistLocked()
}

func (r *Registry) persistLocked() error {
	if err := r.store.Save(r.records); err != nil {
		r.logError("persisting registry failed", "error", err, "users", len(r.records))
		return err
	}
	return nil
}

func (r *Registry) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Registry) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Registry) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}
