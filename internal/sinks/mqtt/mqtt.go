// Package mqtt publishes acquisition events to an MQTT broker, one topic per
// event type under a configurable prefix.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/pkg/config"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	connectTimeout   = 10 * time.Second
	publishTimeout   = 5 * time.Second
	publishQueueSize = 64
)

var errPublishTimeout = errors.New("timed out waiting for broker acknowledgement")

// Publisher delivers one payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close()
}

// Message is the JSON document published for every event
type Message struct {
	Type acquisition.EventType `json:"type"`
	Time time.Time             `json:"time"`
	Data acquisition.Event     `json:"data"`
}

// Sink forwards events to a Publisher.
type Sink struct {
	pub    Publisher
	prefix string
	logger *zap.SugaredLogger
}

// New connects to the configured broker. The client keeps retrying in the
// background when the broker is not reachable yet.
func New(cfg config.MQTTData, logger *zap.SugaredLogger) (*Sink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt: no broker configured")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "freqtest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Infof("MQTT: connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warnf("MQTT: connection lost: %v", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warnf("MQTT: broker %s not reachable yet, retrying in the background", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	pub := &clientPublisher{client: client, qos: byte(cfg.QoS), logger: logger}
	return NewWithPublisher(pub, cfg.TopicPrefix, logger), nil
}

// NewWithPublisher returns a sink that publishes through pub.
func NewWithPublisher(pub Publisher, prefix string, logger *zap.SugaredLogger) *Sink {
	return &Sink{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger,
	}
}

// Topic returns the topic an event type is published on.
func Topic(prefix string, t acquisition.EventType) string {
	return strings.TrimSuffix(prefix, "/") + "/" + string(t)
}

// StartEventSink implements sinks.EventSink. Events pass through a bounded
// publish queue and are dropped while it is full. The publisher is closed
// when ctx ends.
func (s *Sink) StartEventSink(ctx context.Context, wg *sync.WaitGroup) chan<- acquisition.Event {
	c := make(chan acquisition.Event, 16)
	queue := make(chan acquisition.Event, publishQueueSize)

	wg.Add(2)
	go func() {
		defer wg.Done()

		dropped := 0
		for {
			select {
			case ev := <-c:
				select {
				case queue <- ev:
					if dropped > 0 {
						s.logger.Warnf("MQTT: publish queue drained, %d events were dropped", dropped)
						dropped = 0
					}
				default:
					if dropped == 0 {
						s.logger.Warnf("MQTT: publish queue full, dropping events until the broker catches up")
					}
					dropped++
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer s.pub.Close()

		for {
			select {
			case ev := <-queue:
				if err := s.Publish(ev); err != nil {
					s.logger.Warnf("MQTT: could not publish %s event: %v", ev.Type(), err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return c
}

// Publish sends a single event.
func (s *Sink) Publish(ev acquisition.Event) error {
	payload, err := json.Marshal(Message{
		Type: ev.Type(),
		Time: time.Now().UTC(),
		Data: ev,
	})
	if err != nil {
		return err
	}

	return s.pub.Publish(Topic(s.prefix, ev.Type()), payload)
}

// clientPublisher hands payloads to paho and checks the delivery token off
// the caller's goroutine.
type clientPublisher struct {
	client paho.Client
	qos    byte
	logger *zap.SugaredLogger
}

func (p *clientPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warnf("MQTT: publish to %s: %v", topic, errPublishTimeout)
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warnf("MQTT: publish to %s: %v", topic, err)
		}
	}()
	return nil
}

func (p *clientPublisher) Close() {
	p.client.Disconnect(250)
}
