// Package metrics exports acquisition events as Prometheus metrics.
package metrics

import (
	"context"
	"math"
	"sync"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink updates counters and gauges from the event stream.
type Sink struct {
	readings   *prometheus.CounterVec
	noReadings prometheus.Counter
	timedTests *prometheus.CounterVec
	lastFreq   prometheus.Gauge
	driftPPM   prometheus.Gauge
}

// New registers the freqtest metrics on reg.
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)

	s := &Sink{
		readings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freqtest_readings_total",
				Help: "Parsed readings by verdict",
			},
			[]string{"verdict"},
		),
		noReadings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "freqtest_no_readings_total",
				Help: "Reads that timed out, failed or could not be parsed",
			},
		),
		timedTests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freqtest_timed_tests_total",
				Help: "Finished timed tests by outcome",
			},
			[]string{"outcome"},
		),
		lastFreq: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freqtest_last_frequency_hz",
				Help: "Most recent parsed frequency",
			},
		),
		driftPPM: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freqtest_drift_ppm",
				Help: "Drift of the active measurement set in parts per million, NaN when the set is empty",
			},
		),
	}
	s.driftPPM.Set(math.NaN())

	return s
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
				s.Observe(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	return c
}

// Observe applies one event to the metrics.
func (s *Sink) Observe(ev acquisition.Event) {
	switch e := ev.(type) {
	case acquisition.Reading:
		s.readings.WithLabelValues(string(e.Verdict)).Inc()
		s.lastFreq.Set(e.Measurement.Value)
		s.setDrift(e.Summary)
	case acquisition.NoReading:
		s.noReadings.Inc()
	case acquisition.Finished:
		outcome := "complete"
		if e.Cancelled {
			outcome = "cancelled"
		}
		s.timedTests.WithLabelValues(outcome).Inc()
		s.setDrift(e.Summary)
	case acquisition.Cleared:
		s.setDrift(e.Summary)
	}
}

// setDrift reports NaN while the active set is empty.
func (s *Sink) setDrift(summary acquisition.Summary) {
	if summary.Stats == nil {
		s.driftPPM.Set(math.NaN())
		return
	}
	s.driftPPM.Set(summary.Stats.DriftPPM)
}
