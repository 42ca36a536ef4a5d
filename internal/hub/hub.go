package hub

import (
	"sync"
)

// Session is one connected client.
//
// Deliver must not block for long: implementations queue the frame and
// return ErrSendBufferFull rather than wait on a slow peer.
type Session interface {
	ID() string
	Deliver(text string) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Hub is the set of currently connected sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session
	logger   Logger
}

// New creates an empty hub. logger may be nil.
func New(logger Logger) *Hub {
	return &Hub{
		sessions: make(map[string]Session),
		logger:   logger,
	}
}

// Add starts tracking a session. Re-adding an ID replaces the old entry.
func (h *Hub) Add(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.logDebug("session added", "session_id", s.ID(), "sessions", count)
}

// Remove stops tracking a session. Removing an unknown session is a no-op.
func (h *Hub) Remove(s Session) {
	h.mu.Lock()
	_, existed := h.sessions[s.ID()]
	delete(h.sessions, s.ID())
	count := len(h.sessions)
	h.mu.Unlock()

	if existed {
		h.logDebug("session removed", "session_id", s.ID(), "sessions", count)
	}
}

// Broadcast delivers text to every tracked session and returns how many
// accepted it.
func (h *Hub) Broadcast(text string) int {
	// Snapshot under the read lock so Deliver runs without holding it.
	h.mu.RLock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range sessions {
		if h.deliver(s, text) {
			delivered++
		}
	}
	return delivered
}

// Send delivers text to a single session.
func (h *Hub) Send(s Session, text string) error {
	if err := s.Deliver(text); err != nil {
		h.logDebug("unicast delivery failed", "session_id", s.ID(), "error", err)
		return err
	}
	return nil
}

// Contains reports whether a session with the given ID is tracked.
func (h *Hub) Contains(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[id]
	return ok
}

// Count returns the number of tracked sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) deliver(s Session, text string) bool {
	if err := s.Deliver(text); err != nil {
		h.logWarn("broadcast delivery failed", "session_id", s.ID(), "error", err)
		return false
	}
	return true
}

func (h *Hub) logDebug(msg string, keysAndValues ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, keysAndValues...)
	}
}

func (h *Hub) logWarn(msg string, keysAndValues ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, keysAndValues...)
	}
}
