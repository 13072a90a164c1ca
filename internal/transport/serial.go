package transport

import (
	"bufio"
	"encoding/hex"
	"io"
	"strings"
	"sync"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

// lineBuffer is how many unread lines a connection keeps before the reader
// blocks.
const lineBuffer = 16

// OpenFunc opens a port and returns its byte stream.
type OpenFunc func(name string, baud int) (io.ReadWriteCloser, error)

// OpenSerialPort opens a real serial device with tarm/goserial.
func OpenSerialPort(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud})
}

// Serial is a Transport over a serial port. goserial ports block on read
// with no timeout, so each connection runs a reader goroutine that splits
// the stream into lines and ReadLine waits on that with its own timer.
type Serial struct {
	baud   int
	open   OpenFunc
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn *connection
}

type connection struct {
	port  string
	rwc   io.ReadWriteCloser
	lines chan string

	// failed is closed by the reader when the stream returns an error;
	// readErr is set before that.
	failed  chan struct{}
	readErr error

	closed    chan struct{}
	closeOnce sync.Once
}

// NewSerial returns a closed Serial transport. A nil open func uses
// OpenSerialPort and a zero baud uses DefaultBaud.
func NewSerial(baud int, open OpenFunc, logger *zap.SugaredLogger) *Serial {
	if baud == 0 {
		baud = DefaultBaud
	}
	if open == nil {
		open = OpenSerialPort
	}
	return &Serial{
		baud:   baud,
		open:   open,
		logger: logger,
	}
}

// Open connects to port, closing any connection that is already open.
func (s *Serial) Open(port string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if port == "" {
		return &Error{Op: "open", Kind: ErrConnection, Err: errEmptyPort}
	}

	if s.conn != nil {
		s.logger.Infof("closing %s before opening %s", s.conn.port, port)
		s.conn.close(s.logger)
		s.conn = nil
	}

	s.logger.Debugf("attempting to open serial port %s at %d baud", port, s.baud)
	rwc, err := s.open(port, s.baud)
	if err != nil {
		s.logger.Errorf("failed to open serial port %s: %v", port, err)
		return &Error{Op: "open", Port: port, Kind: ErrConnection, Err: err}
	}

	c := &connection{
		port:   port,
		rwc:    rwc,
		lines:  make(chan string, lineBuffer),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
	}
	go c.readLines()

	s.conn = c
	s.logger.Infof("connected to %s", port)
	return nil
}

// Close is idempotent; errors from an already broken port are logged and
// dropped.
func (s *Serial) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}
	s.conn.close(s.logger)
	s.conn = nil
}

// Port returns the open port's name.
func (s *Serial) Port() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ""
	}
	return s.conn.port
}

// WriteCommand discards any lines left over from earlier timed-out queries
// and then writes cmd.
func (s *Serial) WriteCommand(cmd []byte) error {
	c := s.current()
	if c == nil {
		return &Error{Op: "write", Kind: ErrIO, Err: ErrNotConnected}
	}

	select {
	case <-c.failed:
		return &Error{Op: "write", Port: c.port, Kind: ErrIO, Err: c.readErr}
	default:
	}

	for drained := false; !drained; {
		select {
		case stale := <-c.lines:
			s.logger.Debugf("discarding stale line from %s: %q", c.port, stale)
		default:
			drained = true
		}
	}

	if len(cmd) > 0 {
		s.logger.Debugf("writing to %s: %s", c.port, hex.EncodeToString(cmd))
	}

	if _, err := c.rwc.Write(cmd); err != nil {
		s.logger.Errorf("error writing to %s: %v", c.port, err)
		return &Error{Op: "write", Port: c.port, Kind: ErrIO, Err: err}
	}
	return nil
}

// ReadLine waits up to timeout for the next complete line.
func (s *Serial) ReadLine(timeout time.Duration) (string, error) {
	c := s.current()
	if c == nil {
		return "", &Error{Op: "read", Kind: ErrIO, Err: ErrNotConnected}
	}

	// A line that arrived before the stream broke is still delivered.
	select {
	case line := <-c.lines:
		return line, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-c.lines:
		return line, nil
	case <-c.failed:
		return "", &Error{Op: "read", Port: c.port, Kind: ErrIO, Err: c.readErr}
	case <-c.closed:
		return "", &Error{Op: "read", Port: c.port, Kind: ErrIO, Err: ErrNotConnected}
	case <-timer.C:
		return "", &Error{Op: "read", Port: c.port, Kind: ErrTimeout}
	}
}

func (s *Serial) current() *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// readLines exits once the port returns an error, which closing the port
// normally causes.
func (c *connection) readLines() {
	r := bufio.NewReader(c.rwc)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			c.readErr = err
			close(c.failed)
			return
		}

		select {
		case c.lines <- strings.TrimRight(line, "\r\n"):
		case <-c.closed:
			return
		}
	}
}

func (c *connection) close(logger *zap.SugaredLogger) {
	c.closeOnce.Do(func() {
		close(c.closed)
		if err := c.rwc.Close(); err != nil {
			logger.Debugf("ignoring error closing %s: %v", c.port, err)
		}
	})
}
