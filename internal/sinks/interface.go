// Package sinks defines the interface implemented by consumers of
// acquisition events.
package sinks

import (
	"context"
	"sync"

	"github.com/chrissnell/freqtest/internal/acquisition"
)

// EventSink is a consumer of controller events. StartEventSink launches the
// sink's worker and returns the channel the distributor feeds it through.
// The worker must exit when ctx is cancelled.
type EventSink interface {
	StartEventSink(context.Context, *sync.WaitGroup) chan<- acquisition.Event
}
