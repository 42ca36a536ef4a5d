package serialport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream to the device.
//
// Read must return within a bounded time (returning 0, nil when no data
// arrived) so the reader can observe Close.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the named port at the given baud rate.
type Opener func(name string, baud int, readTimeout time.Duration) (Port, error)

// OpenPort opens a real serial device as 8N1 with the given read timeout.
func OpenPort(name string, baud int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, name, err)
	}

	if readTimeout > 0 {
		if err := p.SetReadTimeout(readTimeout); err != nil {
			p.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("%w: setting read timeout: %w", ErrOpenFailed, err)
		}
	}

	return p, nil
}

// ListPorts returns the names of serial ports present on this host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}
