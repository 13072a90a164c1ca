package transport

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakePort is an in-memory serial device. Lines pushed with send arrive on
// the host side; writes from the host are recorded.
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written []byte
	closed  bool
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (f *fakePort) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("port closed")
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	f.r.CloseWithError(io.ErrClosedPipe)
	return nil
}

func (f *fakePort) send(t *testing.T, line string) {
	t.Helper()
	go func() {
		_, _ = f.w.Write([]byte(line))
	}()
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePort) writtenBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written...)
}

func newTestSerial(t *testing.T, ports map[string]*fakePort) *Serial {
	t.Helper()
	open := func(name string, baud int) (io.ReadWriteCloser, error) {
		assert.Equal(t, DefaultBaud, baud)
		p, ok := ports[name]
		if !ok {
			return nil, os.ErrNotExist
		}
		return p, nil
	}
	return NewSerial(0, open, zaptest.NewLogger(t).Sugar())
}

func TestOpenEmptyPort(t *testing.T) {
	s := newTestSerial(t, nil)

	err := s.Open("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, "", s.Port())
}

func TestOpenUnavailableDevice(t *testing.T) {
	s := newTestSerial(t, nil)

	err := s.Open("/dev/ttyACM9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "/dev/ttyACM9", te.Port)
}

func TestWriteAndReadLine(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(t, map[string]*fakePort{"/dev/ttyACM0": port})
	require.NoError(t, s.Open("/dev/ttyACM0"))
	defer s.Close()

	require.NoError(t, s.WriteCommand([]byte("FREQ?\r\n")))
	assert.Equal(t, []byte("FREQ?\r\n"), port.writtenBytes())

	port.send(t, "10000.00012 Hz\r\n")
	line, err := s.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "10000.00012 Hz", line)
}

func TestReadLineTimeout(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(t, map[string]*fakePort{"/dev/ttyACM0": port})
	require.NoError(t, s.Open("/dev/ttyACM0"))
	defer s.Close()

	// A partial line is not a line.
	port.send(t, "10000.0")

	start := time.Now()
	_, err := s.ReadLine(50 * time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrIO))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestNotConnected(t *testing.T) {
	s := newTestSerial(t, nil)

	err := s.WriteCommand([]byte("FREQ?\r\n"))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = s.ReadLine(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIsIdempotent(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(t, map[string]*fakePort{"/dev/ttyACM0": port})
	require.NoError(t, s.Open("/dev/ttyACM0"))

	s.Close()
	s.Close()

	assert.True(t, port.isClosed())
	assert.Equal(t, "", s.Port())

	err := s.WriteCommand([]byte("FREQ?\r\n"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestOpenClosesPreviousConnection(t *testing.T) {
	first := newFakePort()
	second := newFakePort()
	s := newTestSerial(t, map[string]*fakePort{
		"/dev/ttyACM0": first,
		"/dev/ttyUSB0": second,
	})

	require.NoError(t, s.Open("/dev/ttyACM0"))
	require.NoError(t, s.Open("/dev/ttyUSB0"))
	defer s.Close()

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, "/dev/ttyUSB0", s.Port())
}

func TestReadAfterStreamFailure(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(t, map[string]*fakePort{"/dev/ttyACM0": port})
	require.NoError(t, s.Open("/dev/ttyACM0"))
	defer s.Close()

	port.w.CloseWithError(errors.New("device unplugged"))

	_, err := s.ReadLine(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	err = s.WriteCommand([]byte("FREQ?\r\n"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestWriteDiscardsStaleLines(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(t, map[string]*fakePort{"/dev/ttyACM0": port})
	require.NoError(t, s.Open("/dev/ttyACM0"))
	defer s.Close()

	port.send(t, "9999.1 Hz\r\n")
	require.Eventually(t, func() bool {
		return len(s.current().lines) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.WriteCommand([]byte("FREQ?\r\n")))

	port.send(t, "10000.2 Hz\r\n")
	line, err := s.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "10000.2 Hz", line)
}
