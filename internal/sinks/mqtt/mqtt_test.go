package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/internal/frequency"
	"github.com/chrissnell/freqtest/internal/managers"
	"github.com/chrissnell/freqtest/internal/statistics"
	"github.com/chrissnell/freqtest/internal/transport"
	"github.com/chrissnell/freqtest/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
	closed   bool
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakePublisher) snapshot() ([]published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...), f.closed
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "freqtest/reading", Topic("freqtest", acquisition.EventReading))
	assert.Equal(t, "lab/bench1/no_reading", Topic("lab/bench1/", acquisition.EventNoReading))
}

func TestPublishReading(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewWithPublisher(pub, "lab/", zaptest.NewLogger(t).Sugar())

	ev := acquisition.Reading{
		Set: acquisition.SingleReadSet,
		Measurement: statistics.Measurement{
			Value:         10000.5,
			SequenceIndex: 1,
			Timestamp:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Verdict: frequency.Pass,
	}
	require.NoError(t, sink.Publish(ev))

	msgs, _ := pub.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lab/reading", msgs[0].topic)

	var doc struct {
		Type string `json:"type"`
		Data struct {
			Set         string `json:"set"`
			Verdict     string `json:"verdict"`
			Measurement struct {
				Value         float64 `json:"value"`
				SequenceIndex uint    `json:"sequence_index"`
			} `json:"measurement"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &doc))
	assert.Equal(t, "reading", doc.Type)
	assert.Equal(t, "single", doc.Data.Set)
	assert.Equal(t, "PASS", doc.Data.Verdict)
	assert.Equal(t, 10000.5, doc.Data.Measurement.Value)
	assert.EqualValues(t, 1, doc.Data.Measurement.SequenceIndex)
}

func TestStartEventSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewWithPublisher(pub, "freqtest", zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c := sink.StartEventSink(ctx, &wg)

	c <- acquisition.StatusMessage{Text: "Stats cleared.", Level: acquisition.LevelInfo}
	c <- acquisition.Finished{RunID: "run-1", Samples: 3}

	require.Eventually(t, func() bool {
		msgs, _ := pub.snapshot()
		return len(msgs) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	msgs, closed := pub.snapshot()
	assert.True(t, closed)
	assert.Equal(t, "freqtest/status", msgs[0].topic)
	assert.Equal(t, "freqtest/finished", msgs[1].topic)
	assert.Contains(t, string(msgs[1].payload), `"run_id":"run-1"`)
}

func TestPublishErrorIsLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := NewWithPublisher(pub, "freqtest", zap.NewNop().Sugar())

	assert.EqualError(t, sink.Publish(acquisition.Progress{RunID: "r", Fraction: 0.5}), "not connected")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c := sink.StartEventSink(ctx, &wg)
	c <- acquisition.Progress{RunID: "r", Fraction: 1}

	cancel()
	wg.Wait()

	msgs, closed := pub.snapshot()
	assert.Empty(t, msgs)
	assert.True(t, closed)
}

func TestNewRequiresBroker(t *testing.T) {
	_, err := New(config.MQTTData{TopicPrefix: "freqtest"}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

// stalledPublisher never returns from Publish until released.
type stalledPublisher struct {
	release chan struct{}
	once    sync.Once
}

func (p *stalledPublisher) Publish(string, []byte) error {
	<-p.release
	return nil
}

func (p *stalledPublisher) Close() {}

func (p *stalledPublisher) unblock() {
	p.once.Do(func() { close(p.release) })
}

// instantCounter answers every query immediately.
type instantCounter struct {
	mu   sync.Mutex
	port string
}

func (c *instantCounter) Open(port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.port = port
	return nil
}

func (c *instantCounter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.port = ""
}

func (c *instantCounter) Port() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

func (c *instantCounter) WriteCommand([]byte) error { return nil }

func (c *instantCounter) ReadLine(time.Duration) (string, error) { return "10000.00000000 Hz", nil }

var _ transport.Transport = (*instantCounter)(nil)

func TestStalledBrokerDoesNotBlockAcquisition(t *testing.T) {
	logger := zap.NewNop().Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	ctrl, err := acquisition.NewController(ctx, &instantCounter{}, frequency.DefaultParameters(), acquisition.Options{
		SettleDelay:    -1,
		SampleInterval: time.Millisecond,
		EventBuffer:    8,
	}, logger)
	require.NoError(t, err)
	require.NoError(t, ctrl.Connect("/dev/ttyACM0"))

	pub := &stalledPublisher{release: make(chan struct{})}
	defer func() {
		ctrl.CancelTimedTest()
		cancel()
		pub.unblock()
		ctrl.Wait()
		wg.Wait()
	}()

	mgr := managers.NewEventManager(logger)
	mgr.AddSink(ctx, &wg, "mqtt", NewWithPublisher(pub, "freqtest", logger))
	mgr.StartEventDistributor(ctx, &wg, ctrl.Events())

	_, err = ctrl.StartTimedTest(60)
	require.NoError(t, err)

	// Far more events than every buffer between the controller and the
	// stalled publisher can hold.
	require.Eventually(t, func() bool {
		return len(ctrl.Measurements(acquisition.TimedTestSet)) >= 500
	}, 10*time.Second, 10*time.Millisecond)

	ctrl.CancelTimedTest()
	assert.Eventually(t, func() bool {
		return ctrl.State() == acquisition.Idle
	}, time.Second, 5*time.Millisecond)
}
