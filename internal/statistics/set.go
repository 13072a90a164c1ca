// Package statistics keeps running aggregates over an ordered, append-only
// sequence of frequency measurements.
package statistics

import "time"

// Measurement is a single parsed reading. Measurements are never modified
// after they are appended to a Set.
type Measurement struct {
	Value         float64   `json:"value" msgpack:"value"`
	SequenceIndex uint      `json:"sequence_index" msgpack:"sequence_index"`
	Timestamp     time.Time `json:"timestamp" msgpack:"timestamp"`
}

// Stats is derived from a non-empty Set.
type Stats struct {
	Count    int     `json:"count" msgpack:"count"`
	Min      float64 `json:"min" msgpack:"min"`
	Max      float64 `json:"max" msgpack:"max"`
	Average  float64 `json:"average" msgpack:"average"`
	Spread   float64 `json:"spread" msgpack:"spread"`
	DriftPPM float64 `json:"drift_ppm" msgpack:"drift_ppm"`
}

// Set holds measurements in acquisition order along with cached min, max,
// sum and count. A Set is not safe for concurrent use.
type Set struct {
	measurements []Measurement
	min          float64
	max          float64
	sum          float64
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Append records value with the next sequence index and updates the
// aggregates in constant time.
func (s *Set) Append(value float64, ts time.Time) Measurement {
	m := Measurement{
		Value:         value,
		SequenceIndex: uint(len(s.measurements)),
		Timestamp:     ts,
	}

	if len(s.measurements) == 0 {
		s.min = value
		s.max = value
	} else {
		if value < s.min {
			s.min = value
		}
		if value > s.max {
			s.max = value
		}
	}
	s.sum += value
	s.measurements = append(s.measurements, m)

	return m
}

// Len returns the number of measurements in the set.
func (s *Set) Len() int {
	return len(s.measurements)
}

// Measurements returns a copy of the recorded measurements.
func (s *Set) Measurements() []Measurement {
	out := make([]Measurement, len(s.measurements))
	copy(out, s.measurements)
	return out
}

// Snapshot derives Stats from the cached aggregates. The second return value
// is false when the set is empty; callers must treat that as "no data"
// rather than as zeros.
func (s *Set) Snapshot() (Stats, bool) {
	count := len(s.measurements)
	if count == 0 {
		return Stats{}, false
	}

	avg := s.sum / float64(count)
	spread := s.max - s.min

	var drift float64
	if avg != 0 {
		drift = (spread / avg) * 1_000_000
	}

	return Stats{
		Count:    count,
		Min:      s.min,
		Max:      s.max,
		Average:  avg,
		Spread:   spread,
		DriftPPM: drift,
	}, true
}

// Clear discards every measurement and resets the aggregates.
func (s *Set) Clear() {
	s.measurements = nil
	s.min = 0
	s.max = 0
	s.sum = 0
}
