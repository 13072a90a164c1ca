// Package logsink writes acquisition events to the application log.
package logsink

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"go.uber.org/zap"
)

// Sink logs readings, progress and run results. Status messages are not
// repeated here; the controller logs them as it emits them.
type Sink struct {
	logger *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger) *Sink {
	return &Sink{logger: logger}
}

// StartEventSink implements sinks.EventSink.
func (s *Sink) StartEventSink(ctx context.Context, wg *sync.WaitGroup) chan<- acquisition.Event {
	c := make(chan acquisition.Event, 16)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev := <-c:
				s.log(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	return c
}

func (s *Sink) log(ev acquisition.Event) {
	switch e := ev.(type) {
	case acquisition.StatusMessage:
		return
	case acquisition.NoReading:
		s.logger.Warn(Describe(e))
	case acquisition.Progress:
		s.logger.Debug(Describe(e))
	default:
		s.logger.Info(Describe(e))
	}
}

// Describe renders an event as a single human-readable line.
func Describe(ev acquisition.Event) string {
	switch e := ev.(type) {
	case acquisition.Reading:
		return fmt.Sprintf("%s #%d: %.8f Hz %s", e.Set, e.Measurement.SequenceIndex, e.Measurement.Value, e.Verdict)
	case acquisition.NoReading:
		return fmt.Sprintf("%s: no reading (%s)", e.Set, e.Reason)
	case acquisition.Progress:
		return fmt.Sprintf("progress %.0f%%", e.Fraction*100)
	case acquisition.Finished:
		outcome := "complete"
		if e.Cancelled {
			outcome = "cancelled"
		}
		return fmt.Sprintf("timed test %s, %d samples; %s", outcome, e.Samples, DescribeSummary(e.Summary))
	case acquisition.Cleared:
		return "statistics cleared"
	case acquisition.StatusMessage:
		return fmt.Sprintf("[%s] %s", e.Level, e.Text)
	default:
		return fmt.Sprintf("%s event", ev.Type())
	}
}

// DescribeSummary renders the statistics panel on one line.
func DescribeSummary(s acquisition.Summary) string {
	if s.Stats == nil {
		return "no statistics"
	}
	st := s.Stats
	return fmt.Sprintf("%s: n=%d min=%.8f max=%.8f avg=%.8f spread=%.8f drift=%.3f ppm",
		s.Source, st.Count, st.Min, st.Max, st.Average, st.Spread, st.DriftPPM)
}
