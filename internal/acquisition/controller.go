// Package acquisition drives the frequency counter: single reads, timed
// drift tests, pass/fail classification and running statistics. Results are
// delivered as typed events on a single ordered channel.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/freqtest/internal/frequency"
	"github.com/chrissnell/freqtest/internal/statistics"
	"github.com/chrissnell/freqtest/internal/transport"
	"go.uber.org/zap"
)

// QueryCommand asks the counter for its current frequency reading.
var QueryCommand = []byte("FREQ?\r\n")

// ErrBusy is returned when a request conflicts with the worker that is
// already running.
var ErrBusy = errors.New("acquisition in progress")

// State is the controller's position in its state machine.
type State int

const (
	Idle State = iota
	SingleReadInFlight
	TimedTestRunning
	TimedTestComplete
	TimedTestCancelled
	Connecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SingleReadInFlight:
		return "single-read"
	case TimedTestRunning:
		return "timed-test-running"
	case TimedTestComplete:
		return "timed-test-complete"
	case TimedTestCancelled:
		return "timed-test-cancelled"
	case Connecting:
		return "connecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options tunes timing and plumbing. Zero fields take the defaults below.
type Options struct {
	ReadTimeout     time.Duration
	SettleDelay     time.Duration
	SampleInterval  time.Duration
	DefaultDuration time.Duration
	EventBuffer     int
	ListPorts       transport.PortLister
}

const (
	DefaultSettleDelay     = 250 * time.Millisecond
	DefaultSampleInterval  = time.Second
	DefaultTimedDuration   = 10 * time.Second
	DefaultEventBufferSize = 64
)

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = transport.DefaultReadTimeout
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	} else if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = DefaultTimedDuration
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBufferSize
	}
	if o.ListPorts == nil {
		o.ListPorts = transport.ListPorts
	}
	return o
}

// Controller owns the transport, both measurement sets and the single
// background worker. All methods are safe to call from any goroutine and
// none of them waits for a measurement.
type Controller struct {
	ctx       context.Context
	transport transport.Transport
	opts      Options
	logger    *zap.SugaredLogger
	events    chan Event
	workers   sync.WaitGroup

	mu     sync.Mutex
	state  State
	params frequency.TestParameters
	single *statistics.Set
	timed  *statistics.Set
	run    *timedRun
}

// NewController returns an idle controller. Events must be drained by the
// caller; the worker blocks when the event buffer is full. A negative
// SettleDelay disables the settle wait.
func NewController(ctx context.Context, t transport.Transport, params frequency.TestParameters, opts Options, logger *zap.SugaredLogger) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()

	return &Controller{
		ctx:       ctx,
		transport: t,
		opts:      opts,
		logger:    logger,
		events:    make(chan Event, opts.EventBuffer),
		params:    params,
		single:    statistics.NewSet(),
		timed:     statistics.NewSet(),
	}, nil
}

// Events returns the ordered event stream.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Wait blocks until no worker is running.
func (c *Controller) Wait() {
	c.workers.Wait()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Parameters returns the parameters the next reading will be evaluated against.
func (c *Controller) Parameters() frequency.TestParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SetParameters replaces the test parameters. Readings already recorded keep
// the verdict they were given.
func (c *Controller) SetParameters(p frequency.TestParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.params = p
	c.mu.Unlock()

	c.logger.Infof("test parameters set: target=%v Hz tolerance=%v %v", p.TargetHz, p.ToleranceMagnitude, p.ToleranceUnit)
	return nil
}

// Statistics returns the statistics of the active set. The timed-test set
// takes precedence whenever it is non-empty.
func (c *Controller) Statistics() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaryLocked()
}

func (c *Controller) summaryLocked() Summary {
	if st, ok := c.timed.Snapshot(); ok {
		return Summary{Source: TimedTestSet, Stats: &st}
	}
	if st, ok := c.single.Snapshot(); ok {
		return Summary{Source: SingleReadSet, Stats: &st}
	}
	return Summary{Source: SingleReadSet}
}

// Measurements returns a copy of one set's measurements.
func (c *Controller) Measurements(kind SetKind) []statistics.Measurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setFor(kind).Measurements()
}

func (c *Controller) setFor(kind SetKind) *statistics.Set {
	if kind == TimedTestSet {
		return c.timed
	}
	return c.single
}

// ListAvailablePorts enumerates serial ports.
func (c *Controller) ListAvailablePorts() ([]string, error) {
	ports, err := c.opts.ListPorts()
	if err != nil {
		c.status(LevelError, fmt.Sprintf("Could not list ports: %v", err))
		return nil, err
	}
	c.status(LevelInfo, "Port list refreshed.")
	return ports, nil
}

// Connect opens port, replacing any open connection. It is refused while a
// worker is running, and reads and timed tests are refused until it returns.
func (c *Controller) Connect(port string) error {
	if err := c.claim("connect", Connecting); err != nil {
		return err
	}
	defer c.setState(Idle)

	if port == "" {
		c.status(LevelError, "Please select a port.")
		return &transport.Error{Op: "open", Kind: transport.ErrConnection}
	}

	if err := c.transport.Open(port); err != nil {
		c.status(LevelError, fmt.Sprintf("Connection error: %v", err))
		return err
	}

	c.status(LevelSuccess, fmt.Sprintf("Connected to TF930 on %s", port))
	return nil
}

// Disconnect closes the connection. It is refused while a worker is running.
func (c *Controller) Disconnect() error {
	if err := c.claim("disconnect", Connecting); err != nil {
		return err
	}
	defer c.setState(Idle)

	c.transport.Close()
	c.status(LevelInfo, "Disconnected.")
	return nil
}

// SingleRead starts one read-parse-evaluate cycle on the worker and returns
// immediately. The result arrives as a Reading or NoReading event.
func (c *Controller) SingleRead() error {
	if err := c.claim("single read", SingleReadInFlight); err != nil {
		return err
	}

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		defer c.setState(Idle)

		c.acquire(SingleReadSet, "")
	}()

	return nil
}

// ClearStatistics empties both measurement sets. It is allowed in any state.
func (c *Controller) ClearStatistics() {
	c.mu.Lock()
	c.single.Clear()
	c.timed.Clear()
	summary := c.summaryLocked()
	c.mu.Unlock()

	c.emit(Cleared{Summary: summary})
	c.status(LevelInfo, "Stats cleared.")
}

// claim moves an idle controller to s. Every other entry point is refused
// with ErrBusy until the state returns to Idle.
func (c *Controller) claim(op string, s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		c.logger.Infof("%s refused: controller is %v", op, c.state)
		return ErrBusy
	}
	c.state = s
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// acquire performs one query cycle and records the result in the given set.
func (c *Controller) acquire(kind SetKind, runID string) bool {
	value, err := c.query()
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrNotConnected):
			c.status(LevelError, "No serial connection!")
		case errors.Is(err, transport.ErrIO):
			c.status(LevelError, fmt.Sprintf("Read error: %v", err))
		default:
			c.logger.Debugf("no reading: %v", err)
		}
		c.emit(NoReading{Set: kind, RunID: runID, Reason: err.Error()})
		return false
	}

	c.mu.Lock()
	params := c.params
	m := c.setFor(kind).Append(value, time.Now())
	summary := c.summaryLocked()
	c.mu.Unlock()

	verdict := frequency.Evaluate(value, params)
	c.logger.Debugf("reading #%d (%s): %.8f Hz %s", m.SequenceIndex, kind, value, verdict)

	c.emit(Reading{
		Set:         kind,
		RunID:       runID,
		Measurement: m,
		Verdict:     verdict,
		Summary:     summary,
	})
	return true
}

// query writes the query command, waits for the counter to settle and
// parses the response line.
func (c *Controller) query() (float64, error) {
	if err := c.transport.WriteCommand(QueryCommand); err != nil {
		return 0, err
	}

	if c.opts.SettleDelay > 0 {
		timer := time.NewTimer(c.opts.SettleDelay)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			return 0, c.ctx.Err()
		}
	}

	line, err := c.transport.ReadLine(c.opts.ReadTimeout)
	if err != nil {
		return 0, err
	}

	return frequency.Parse(line)
}

func (c *Controller) status(level Level, text string) {
	switch level {
	case LevelError:
		c.logger.Errorf("[%s] %s", level, text)
	default:
		c.logger.Infof("[%s] %s", level, text)
	}
	c.emit(StatusMessage{Text: text, Level: level})
}

// emit blocks until the event is buffered or the controller's context ends.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}
