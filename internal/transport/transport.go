// Package transport owns the serial link to the frequency counter.
package transport

import "time"

const (
	// DefaultBaud is the TF930's fixed USB virtual COM port rate.
	DefaultBaud = 115200

	// DefaultReadTimeout bounds a single ReadLine.
	DefaultReadTimeout = time.Second
)

// Transport is a line-oriented command/response link holding at most one
// open connection. Opening a port while another is open closes the old one
// first.
type Transport interface {
	// Open connects to port. It fails with ErrConnection when port is empty,
	// the device is unavailable, or the underlying open call errors.
	Open(port string) error

	// Close releases the current connection. It is idempotent and never fails.
	Close()

	// WriteCommand sends cmd verbatim. It fails with ErrIO on a write failure
	// or when no connection is open.
	WriteCommand(cmd []byte) error

	// ReadLine returns the next line without its delimiter. It fails with
	// ErrTimeout when no line completes within timeout and with ErrIO when
	// the connection is broken or closed.
	ReadLine(timeout time.Duration) (string, error)

	// Port returns the identifier of the open connection, or "" if closed.
	Port() string
}

// PortLister enumerates serial port identifiers present on the host.
type PortLister func() ([]string, error)
