package serialport

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/config"
)

// Link buffering constants.
const (
	// readBufferSize is the size of a single port read.
	readBufferSize = 256

	// lineQueueSize is how many decoded lines may wait for PollLine.
	lineQueueSize = 256

	// maxLineLength caps a partial line; longer input is discarded.
	maxLineLength = 4096

	// defaultWriteTimeout applies when the config leaves it unset.
	defaultWriteTimeout = time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for Connect.
type Options struct {
	// Config supplies port name, baud and timeouts.
	Config config.SerialConfig

	// Opener opens the port. Defaults to OpenPort.
	Opener Opener

	// Logger is optional.
	Logger Logger
}

// Stats is a snapshot of link activity counters.
type Stats struct {
	Port         string `json:"port"`
	Connected    bool   `json:"connected"`
	LinesRx      uint64 `json:"lines_rx"`
	LinesTx      uint64 `json:"lines_tx"`
	LinesDropped uint64 `json:"lines_dropped"`
	WriteErrors  uint64 `json:"write_errors"`
}

// Link is the connection to the enrolment device.
type Link struct {
	cfg    config.SerialConfig
	port   Port
	logger Logger

	connected atomic.Bool
	lines     chan string
	writeMu   sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	linesRx      atomic.Uint64
	linesTx      atomic.Uint64
	linesDropped atomic.Uint64
	writeErrors  atomic.Uint64
}

// Connect opens the configured port and starts the background reader.
//
// It never returns an error: on failure the Link reports IsConnected()==false
// for the rest of its life and the failure is logged.
func Connect(opts Options) *Link {
	l := &Link{
		cfg:    opts.Config,
		logger: opts.Logger,
		lines:  make(chan string, lineQueueSize),
		done:   make(chan struct{}),
	}

	opener := opts.Opener
	if opener == nil {
		opener = OpenPort
	}

	port, err := opener(l.cfg.Port, l.cfg.Baud, l.cfg.ReadTimeout())
	if err != nil {
		l.logError("could not open serial port, running without device", err, "port", l.cfg.Port)
		return l
	}

	l.port = port
	l.connected.Store(true)
	l.logInfo("serial port opened", "port", l.cfg.Port, "baud", l.cfg.Baud)

	l.wg.Add(1)
	go l.readLoop()

	return l
}

// IsConnected reports whether the port is open and has not failed.
func (l *Link) IsConnected() bool {
	return l.port != nil && l.connected.Load()
}

// PollLine returns the next complete line if one is waiting.
// It never blocks.
func (l *Link) PollLine() (string, bool) {
	select {
	case line := <-l.lines:
		return line, true
	default:
		return "", false
	}
}

// WriteLine sends text followed by a newline.
//
// Returns ErrNotConnected without touching the port when the link is down,
// and ErrWriteTimeout if the port does not accept the bytes in time. A
// write that is still pending at timeout completes in the background and
// holds the write lock until it does.
func (l *Link) WriteLine(text string) error {
	if !l.IsConnected() {
		l.logWarn("device not connected, dropping line", "line", text)
		return ErrNotConnected
	}

	payload := []byte(text + "\n")
	result := make(chan error, 1)
	go func() {
		l.writeMu.Lock()
		defer l.writeMu.Unlock()
		_, err := l.port.Write(payload)
		result <- err
	}()

	timeout := l.cfg.WriteTimeout()
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			l.writeErrors.Add(1)
			l.logError("serial write failed, marking device disconnected", err)
			l.markDisconnected()
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		l.linesTx.Add(1)
		l.logDebug("line sent to device", "line", text)
		return nil
	case <-timer.C:
		l.writeErrors.Add(1)
		l.logWarn("serial write timed out", "line", text, "timeout", timeout)
		return ErrWriteTimeout
	}
}

// Stats returns current counters.
func (l *Link) Stats() Stats {
	return Stats{
		Port:         l.cfg.Port,
		Connected:    l.IsConnected(),
		LinesRx:      l.linesRx.Load(),
		LinesTx:      l.linesTx.Load(),
		LinesDropped: l.linesDropped.Load(),
		WriteErrors:  l.writeErrors.Load(),
	}
}

// Close stops the reader and closes the port. Safe to call multiple times.
func (l *Link) Close() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.done)
		l.connected.Store(false)
		if l.port != nil {
			err = l.port.Close()
		}
		l.wg.Wait()
	})
	return err
}

// readLoop turns the byte stream into lines until Close or a read error.
func (l *Link) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, readBufferSize)
	var pending []byte

	for {
		select {
		case <-l.done:
			return
		default:
		}

		n, err := l.port.Read(buf)
		if err != nil {
			if l.isClosed() {
				return
			}
			l.logError("serial read failed, marking device disconnected", err)
			l.markDisconnected()
			return
		}
		if n == 0 {
			continue // read timeout
		}

		pending = append(pending, buf[:n]...)
		pending = l.drainLines(pending)

		if len(pending) > maxLineLength {
			l.logWarn("discarding oversized partial line", "bytes", len(pending))
			l.linesDropped.Add(1)
			pending = pending[:0]
		}
	}
}

// drainLines emits every complete line in pending and returns the remainder.
func (l *Link) drainLines(pending []byte) []byte {
	for {
		idx := bytes.IndexByte(pending, '\n')
		if idx < 0 {
			return pending
		}
		line := DecodeLine(pending[:idx])
		pending = pending[idx+1:]

		if line == "" {
			continue
		}
		l.linesRx.Add(1)

		select {
		case l.lines <- line:
		default:
			l.linesDropped.Add(1)
			l.logWarn("line queue full, dropping device line", "line", line)
		}
	}
}

// DecodeLine converts raw bytes to a trimmed string, dropping invalid UTF-8
// and the carriage return the firmware's println emits.
func DecodeLine(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}

// markDisconnected closes the port after a fatal error.
func (l *Link) markDisconnected() {
	if l.connected.CompareAndSwap(true, false) && l.port != nil {
		l.port.Close() //nolint:errcheck // Port already failed
	}
}

func (l *Link) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Link) logDebug(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, keysAndValues...)
	}
}

func (l *Link) logInfo(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Info(msg, keysAndValues...)
	}
}

func (l *Link) logWarn(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, keysAndValues...)
	}
}

func (l *Link) logError(msg string, err error, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
