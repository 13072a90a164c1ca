package acquisition

import (
	"github.com/chrissnell/freqtest/internal/frequency"
	"github.com/chrissnell/freqtest/internal/statistics"
)

// EventType names an event on the wire and in logs.
type EventType string

const (
	EventReading   EventType = "reading"
	EventNoReading EventType = "no_reading"
	EventProgress  EventType = "progress"
	EventFinished  EventType = "finished"
	EventCleared   EventType = "cleared"
	EventStatus    EventType = "status"
)

// Event is implemented by every value delivered on Controller.Events.
type Event interface {
	Type() EventType
}

// Level is the severity of a StatusMessage. The presentation layer decides
// how each level looks.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// SetKind identifies one of the controller's two measurement sets.
type SetKind string

const (
	SingleReadSet SetKind = "single"
	TimedTestSet  SetKind = "timed"
)

// Summary is the statistics view the UI renders. Stats is nil when the
// active set is empty.
type Summary struct {
	Source SetKind           `json:"source" msgpack:"source"`
	Stats  *statistics.Stats `json:"stats" msgpack:"stats"`
}

// Reading reports a parsed, evaluated measurement.
type Reading struct {
	Set         SetKind                `json:"set" msgpack:"set"`
	RunID       string                 `json:"run_id,omitempty" msgpack:"run_id,omitempty"`
	Measurement statistics.Measurement `json:"measurement" msgpack:"measurement"`
	Verdict     frequency.Verdict      `json:"verdict" msgpack:"verdict"`
	Summary     Summary                `json:"summary" msgpack:"summary"`
}

// NoReading reports a read that timed out, failed or returned garbage. It is
// distinct from a Fail verdict.
type NoReading struct {
	Set    SetKind `json:"set" msgpack:"set"`
	RunID  string  `json:"run_id,omitempty" msgpack:"run_id,omitempty"`
	Reason string  `json:"reason" msgpack:"reason"`
}

// Progress reports how much of a timed test's duration has elapsed, in [0, 1].
type Progress struct {
	RunID    string  `json:"run_id" msgpack:"run_id"`
	Fraction float64 `json:"fraction" msgpack:"fraction"`
}

// Finished is always the last event of a timed test.
type Finished struct {
	RunID     string  `json:"run_id" msgpack:"run_id"`
	Cancelled bool    `json:"cancelled" msgpack:"cancelled"`
	Samples   int     `json:"samples" msgpack:"samples"`
	Summary   Summary `json:"summary" msgpack:"summary"`
}

// Cleared reports that both measurement sets were emptied.
type Cleared struct {
	Summary Summary `json:"summary" msgpack:"summary"`
}

// StatusMessage is a line for the status bar.
type StatusMessage struct {
	Text  string `json:"text" msgpack:"text"`
	Level Level  `json:"level" msgpack:"level"`
}

func (Reading) Type() EventType       { return EventReading }
func (NoReading) Type() EventType     { return EventNoReading }
func (Progress) Type() EventType      { return EventProgress }
func (Finished) Type() EventType      { return EventFinished }
func (Cleared) Type() EventType       { return EventCleared }
func (StatusMessage) Type() EventType { return EventStatus }
