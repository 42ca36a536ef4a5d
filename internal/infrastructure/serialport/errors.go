package serialport

import "errors"

// Domain errors for the serialport package.
var (
	// ErrNotConnected is returned when writing to a link with no usable port.
	ErrNotConnected = errors.New("serialport: device not connected")

	// ErrOpenFailed wraps the cause when the port cannot be opened.
	ErrOpenFailed = errors.New("serialport: open failed")

	// ErrWriteFailed wraps an error from the underlying port write.
	ErrWriteFailed = errors.New("serialport: write failed")

	// ErrWriteTimeout is returned when a write does not finish in time.
	ErrWriteTimeout = errors.New("serialport: write timed out")
)
