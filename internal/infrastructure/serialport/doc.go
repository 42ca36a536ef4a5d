// Package serialport owns the single serial connection to the fingerprint
// enrolment device.
//
// The device speaks a newline-terminated text protocol. This package turns
// the byte stream into trimmed, UTF-8-clean lines and writes outbound lines
// with a bounded wait. It knows nothing about what the lines mean.
//
// # Connectivity
//
// Connect never fails: if the port cannot be opened the returned Link is
// permanently disconnected, writes are dropped with ErrNotConnected, and
// PollLine reports nothing. A read or write failure after a successful
// open has the same effect. There is no reconnection; restart the process
// once the device is plugged back in.
//
// # Usage
//
//	link := serialport.Connect(serialport.Options{Config: cfg.Serial, Logger: log})
//	defer link.Close()
//
//	if line, ok := link.PollLine(); ok {
//	    fmt.Println("device said", line)
//	}
//	_ = link.WriteLine("ENROLL_CANCEL")
//
// Thread Safety: All methods are safe for concurrent use. Writes are
// serialised so lines never interleave on the wire.
package serialport
