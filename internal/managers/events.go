package managers

import (
	"context"
	"sync"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/internal/sinks"
	"go.uber.org/zap"
)

// EventManager holds our active event sinks
type EventManager struct {
	Sinks  []EventSink
	logger *zap.SugaredLogger
}

// EventSink holds a sink's interface as well as the channel for passing
// events to it
type EventSink struct {
	Name string
	Sink sinks.EventSink
	C    chan<- acquisition.Event
}

// NewEventManager creates an EventManager with no sinks
func NewEventManager(logger *zap.SugaredLogger) *EventManager {
	return &EventManager{logger: logger}
}

// AddSink starts sink and adds it to the distribution list. Sinks must be
// added before the distributor is started.
func (m *EventManager) AddSink(ctx context.Context, wg *sync.WaitGroup, name string, sink sinks.EventSink) {
	m.Sinks = append(m.Sinks, EventSink{
		Name: name,
		Sink: sink,
		C:    sink.StartEventSink(ctx, wg),
	})
	m.logger.Infof("event sink %q started", name)
}

// StartEventDistributor receives events from the controller and fans them
// out to every sink in the order they were emitted.
func (m *EventManager) StartEventDistributor(ctx context.Context, wg *sync.WaitGroup, source <-chan acquisition.Event) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		eventCount := 0
		for {
			select {
			case ev := <-source:
				eventCount++
				for _, s := range m.Sinks {
					select {
					case s.C <- ev:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				m.logger.Debugf("event distributor exiting after %d events", eventCount)
				return
			}
		}
	}()
}
