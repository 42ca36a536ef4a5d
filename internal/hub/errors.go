package hub

import "errors"

// Domain errors returned by Session implementations.
var (
	// ErrSessionClosed is returned when delivering to a session whose
	// transport has already gone away.
	ErrSessionClosed = errors.New("hub: session closed")

	// ErrSendBufferFull is returned when a session's outbound queue is full.
	ErrSendBufferFull = errors.New("hub: send buffer full")
)
