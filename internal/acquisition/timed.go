package acquisition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxDurationSeconds keeps duration arithmetic inside time.Duration.
var maxDurationSeconds = time.Duration(math.MaxInt64).Seconds()

type timedRun struct {
	id        string
	duration  time.Duration
	startedAt time.Time

	cancel     chan struct{}
	cancelOnce sync.Once
}

func (r *timedRun) requestCancel() {
	r.cancelOnce.Do(func() { close(r.cancel) })
}

func (r *timedRun) cancelRequested() bool {
	select {
	case <-r.cancel:
		return true
	default:
		return false
	}
}

func (r *timedRun) progress(now time.Time) float64 {
	f := now.Sub(r.startedAt).Seconds() / r.duration.Seconds()
	return math.Max(0, math.Min(1, f))
}

// StartTimedTestInput parses a duration typed by the user, in seconds, and
// starts a timed test with it.
func (c *Controller) StartTimedTestInput(raw string) (string, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		seconds = math.NaN()
	}
	return c.StartTimedTest(seconds)
}

// StartTimedTest clears the timed-test set and starts sampling for the given
// number of seconds. A non-finite or non-positive duration is replaced with
// the default and a status message is emitted. It returns the run ID.
func (c *Controller) StartTimedTest(seconds float64) (string, error) {
	c.mu.Lock()
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		c.logger.Infof("timed test refused: controller is %v", state)
		return "", ErrBusy
	}

	invalid := math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 || seconds >= maxDurationSeconds
	duration := time.Duration(seconds * float64(time.Second))
	if invalid {
		duration = c.opts.DefaultDuration
	}

	run := &timedRun{
		id:        uuid.NewString(),
		duration:  duration,
		startedAt: time.Now(),
		cancel:    make(chan struct{}),
	}

	c.timed.Clear()
	c.state = TimedTestRunning
	c.run = run
	c.mu.Unlock()

	if invalid {
		c.status(LevelError, fmt.Sprintf("Invalid duration, using %gs.", c.opts.DefaultDuration.Seconds()))
	}

	c.workers.Add(1)
	go c.runTimedTest(run)

	return run.id, nil
}

// CancelTimedTest asks the running timed test to stop. It does not interrupt
// a read already in progress. It is a no-op when no test is running.
func (c *Controller) CancelTimedTest() {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run == nil {
		return
	}

	c.logger.Infof("cancellation requested for timed test %s", run.id)
	run.requestCancel()
}

func (c *Controller) runTimedTest(run *timedRun) {
	defer c.workers.Done()

	deadline := run.startedAt.Add(run.duration)
	c.logger.Infof("timed test %s started for %v", run.id, run.duration)
	c.status(LevelInfo, "Timed test running...")
	c.emit(Progress{RunID: run.id, Fraction: 0})

	cancelled := false

sampling:
	for {
		if run.cancelRequested() || c.ctx.Err() != nil {
			cancelled = true
			break
		}
		if !time.Now().Before(deadline) {
			break
		}

		c.acquire(TimedTestSet, run.id)
		c.emit(Progress{RunID: run.id, Fraction: run.progress(time.Now())})

		wait := c.opts.SampleInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-run.cancel:
			timer.Stop()
			cancelled = true
			break sampling
		case <-c.ctx.Done():
			timer.Stop()
			cancelled = true
			break sampling
		}
	}

	c.finishTimedTest(run, cancelled)
}

func (c *Controller) finishTimedTest(run *timedRun, cancelled bool) {
	c.mu.Lock()
	if cancelled {
		c.state = TimedTestCancelled
	} else {
		c.state = TimedTestComplete
	}
	samples := c.timed.Len()
	summary := c.summaryLocked()
	c.mu.Unlock()

	c.emit(Progress{RunID: run.id, Fraction: 1})
	if cancelled {
		c.status(LevelInfo, "Timed test stopped by user.")
	} else {
		c.status(LevelSuccess, "Timed test complete.")
	}
	c.logger.Infof("timed test %s finished: cancelled=%v samples=%d", run.id, cancelled, samples)
	c.emit(Finished{
		RunID:     run.id,
		Cancelled: cancelled,
		Samples:   samples,
		Summary:   summary,
	})

	c.mu.Lock()
	c.state = Idle
	c.run = nil
	c.mu.Unlock()
}
