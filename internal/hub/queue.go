package hub

import "sync"

// DefaultQueueSize is the outbound buffer used by NewQueue when size <= 0.
const DefaultQueueSize = 256

// Queue is a bounded outbound frame buffer shared by transport sessions.
//
// Push never blocks: it fails with ErrSendBufferFull when the consumer is
// behind and ErrSessionClosed after Close. The consumer ranges over C.
type Queue struct {
	ch     chan string
	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue holding up to size frames.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan string, size)}
}

// Push enqueues a frame without blocking.
func (q *Queue) Push(text string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrSessionClosed
	}
	select {
	case q.ch <- text:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// C returns the channel the consumer reads from. It is closed by Close.
func (q *Queue) C() <-chan string {
	return q.ch
}

// Close stops accepting frames and closes C. Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
