package statistics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestSnapshotEmpty(t *testing.T) {
	s := NewSet()

	_, ok := s.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestSnapshotSingleValue(t *testing.T) {
	s := NewSet()
	s.Append(10000.125, time.Now())

	st, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 10000.125, st.Min)
	assert.Equal(t, 10000.125, st.Max)
	assert.Equal(t, 10000.125, st.Average)
	assert.Equal(t, 0.0, st.Spread)
	assert.Equal(t, 0.0, st.DriftPPM)
}

func TestSnapshotThreeReadings(t *testing.T) {
	s := NewSet()
	for _, v := range []float64{9999, 10000, 10001} {
		s.Append(v, time.Now())
	}

	st, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 9999.0, st.Min)
	assert.Equal(t, 10001.0, st.Max)
	assert.InDelta(t, 10000.0, st.Average, 1e-9)
	assert.InDelta(t, 2.0, st.Spread, 1e-9)
	assert.InDelta(t, 200.0, st.DriftPPM, 1e-9)
}

func TestSnapshotZeroAverage(t *testing.T) {
	s := NewSet()
	s.Append(-1, time.Now())
	s.Append(1, time.Now())

	st, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 0.0, st.Average)
	assert.Equal(t, 2.0, st.Spread)
	assert.Equal(t, 0.0, st.DriftPPM)
}

func TestSequenceIndexesAreContiguous(t *testing.T) {
	s := NewSet()
	const n = 25
	for i := 0; i < n; i++ {
		m := s.Append(float64(i), time.Now())
		assert.Equal(t, uint(i), m.SequenceIndex)
	}

	ms := s.Measurements()
	require.Len(t, ms, n)
	for i, m := range ms {
		assert.Equal(t, uint(i), m.SequenceIndex)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := NewSet()
	s.Append(5, time.Now())
	s.Append(7, time.Now())

	s.Clear()
	_, ok := s.Snapshot()
	assert.False(t, ok)

	s.Clear()
	_, ok = s.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	// Indexes restart after a clear and the old extrema are gone.
	m := s.Append(100, time.Now())
	assert.Equal(t, uint(0), m.SequenceIndex)
	st, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 100.0, st.Min)
	assert.Equal(t, 100.0, st.Max)
}

func TestMeasurementsReturnsCopy(t *testing.T) {
	s := NewSet()
	s.Append(1, time.Now())

	ms := s.Measurements()
	ms[0].Value = 99

	assert.Equal(t, 1.0, s.Measurements()[0].Value)
}

// The running aggregates must agree with a batch computation over the same values.
func TestRunningAggregatesMatchBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewSet()
	var values []float64

	for i := 0; i < 500; i++ {
		v := 10000 + rng.NormFloat64()*0.5
		values = append(values, v)
		s.Append(v, time.Now())

		st, ok := s.Snapshot()
		require.True(t, ok)
		require.Equal(t, len(values), st.Count)
		require.Equal(t, floats.Min(values), st.Min)
		require.Equal(t, floats.Max(values), st.Max)
		require.InDelta(t, stat.Mean(values, nil), st.Average, 1e-6)

		for _, x := range values {
			require.True(t, st.Min <= x && x <= st.Max)
		}
	}

	st, _ := s.Snapshot()
	spread := floats.Max(values) - floats.Min(values)
	assert.InDelta(t, spread/stat.Mean(values, nil)*1e6, st.DriftPPM, 1e-6)
}
