// Package config loads freqtest configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/freqtest/internal/frequency"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, with defaults applied and validated
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Log        LogData        `json:"log"`
	Instrument InstrumentData `json:"instrument"`
	Test       TestData       `json:"test"`
	Server     ServerData     `json:"server"`
	MQTT       MQTTData       `json:"mqtt"`
}

// LogData controls the application log
type LogData struct {
	Debug      bool   `json:"debug"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// InstrumentData describes the serial link to the counter. A SettleDelay of
// zero means no wait between query and read.
type InstrumentData struct {
	Port        string        `json:"port,omitempty"`
	Baud        int           `json:"baud"`
	ReadTimeout time.Duration `json:"read_timeout"`
	SettleDelay time.Duration `json:"settle_delay"`
}

// TestData holds the pass/fail parameters and timed test defaults
type TestData struct {
	TargetHz       float64       `json:"target_hz"`
	Tolerance      float64       `json:"tolerance"`
	ToleranceUnit  string        `json:"tolerance_unit"`
	Duration       time.Duration `json:"duration"`
	SampleInterval time.Duration `json:"sample_interval"`
	EventBuffer    int           `json:"event_buffer"`
}

// ServerData configures the HTTP surface of the serve command
type ServerData struct {
	ListenAddr    string `json:"listen_addr"`
	Port          int    `json:"port"`
	EnableMetrics bool   `json:"enable_metrics"`
}

// MQTTData configures the optional MQTT event publisher. An empty Broker
// disables it.
type MQTTData struct {
	Broker      string `json:"broker,omitempty"`
	TopicPrefix string `json:"topic_prefix"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"-"`
	QoS         int    `json:"qos"`
}

// Enabled reports whether a broker is configured
func (m MQTTData) Enabled() bool {
	return m.Broker != ""
}

const (
	DefaultBaud           = 115200
	DefaultReadTimeout    = time.Second
	DefaultSettleDelay    = 250 * time.Millisecond
	DefaultTargetHz       = 10000
	DefaultTolerance      = 10
	DefaultDuration       = 10 * time.Second
	DefaultSampleInterval = time.Second
	DefaultEventBuffer    = 64
	DefaultListenAddr     = "0.0.0.0"
	DefaultHTTPPort       = 8080
	DefaultMQTTTopic      = "freqtest"
)

// Default returns the configuration used when no file is given.
func Default() *ConfigData {
	return &ConfigData{
		Instrument: InstrumentData{
			Baud:        DefaultBaud,
			ReadTimeout: DefaultReadTimeout,
			SettleDelay: DefaultSettleDelay,
		},
		Test: TestData{
			TargetHz:       DefaultTargetHz,
			Tolerance:      DefaultTolerance,
			ToleranceUnit:  frequency.Absolute.String(),
			Duration:       DefaultDuration,
			SampleInterval: DefaultSampleInterval,
			EventBuffer:    DefaultEventBuffer,
		},
		Server: ServerData{
			ListenAddr:    DefaultListenAddr,
			Port:          DefaultHTTPPort,
			EnableMetrics: true,
		},
		MQTT: MQTTData{
			TopicPrefix: DefaultMQTTTopic,
		},
	}
}

// Parameters returns the test parameters described by the test section.
func (c *ConfigData) Parameters() (frequency.TestParameters, error) {
	unit, err := frequency.ParseToleranceUnit(c.Test.ToleranceUnit)
	if err != nil {
		return frequency.TestParameters{}, err
	}

	p := frequency.TestParameters{
		TargetHz:           c.Test.TargetHz,
		ToleranceMagnitude: c.Test.Tolerance,
		ToleranceUnit:      unit,
	}
	return p, p.Validate()
}

// Validate checks every section and reports the first problem found.
func (c *ConfigData) Validate() error {
	if _, err := c.Parameters(); err != nil {
		return fmt.Errorf("%w: test: %v", ErrInvalidConfig, err)
	}

	switch {
	case c.Instrument.Baud <= 0:
		return fmt.Errorf("%w: instrument.baud must be positive", ErrInvalidConfig)
	case c.Instrument.ReadTimeout <= 0:
		return fmt.Errorf("%w: instrument.read-timeout must be positive", ErrInvalidConfig)
	case c.Instrument.SettleDelay < 0:
		return fmt.Errorf("%w: instrument.settle-delay must not be negative", ErrInvalidConfig)
	case c.Test.Duration <= 0:
		return fmt.Errorf("%w: test.duration must be positive", ErrInvalidConfig)
	case c.Test.SampleInterval <= 0:
		return fmt.Errorf("%w: test.sample-interval must be positive", ErrInvalidConfig)
	case c.Test.EventBuffer <= 0:
		return fmt.Errorf("%w: test.event-buffer must be positive", ErrInvalidConfig)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	case c.MQTT.QoS < 0 || c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
	case c.MQTT.Enabled() && c.MQTT.TopicPrefix == "":
		return fmt.Errorf("%w: mqtt.topic-prefix must not be empty", ErrInvalidConfig)
	case c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0:
		return fmt.Errorf("%w: log rotation settings must not be negative", ErrInvalidConfig)
	}

	return nil
}
