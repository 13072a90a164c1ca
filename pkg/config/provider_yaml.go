package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the configuration from the YAML file. Keys that are
// absent keep their defaults.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// ParseYAML decodes a YAML document over the defaults and validates the
// result.
func ParseYAML(data []byte) (*ConfigData, error) {
	var yamlConfig ConfigYAML
	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := Default()
	if err := yamlConfig.apply(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// YAML-specific structs. Pointers distinguish an absent key from a zero value.
type ConfigYAML struct {
	Log        LogYAML        `yaml:"log,omitempty"`
	Instrument InstrumentYAML `yaml:"instrument,omitempty"`
	Test       TestYAML       `yaml:"test,omitempty"`
	Server     ServerYAML     `yaml:"server,omitempty"`
	MQTT       MQTTYAML       `yaml:"mqtt,omitempty"`
}

type LogYAML struct {
	Debug      bool   `yaml:"debug,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty"`
}

type InstrumentYAML struct {
	Port        string  `yaml:"port,omitempty"`
	Baud        *int    `yaml:"baud,omitempty"`
	ReadTimeout *string `yaml:"read-timeout,omitempty"`
	SettleDelay *string `yaml:"settle-delay,omitempty"`
}

type TestYAML struct {
	TargetHz       *float64 `yaml:"target-hz,omitempty"`
	Tolerance      *float64 `yaml:"tolerance,omitempty"`
	ToleranceUnit  *string  `yaml:"tolerance-unit,omitempty"`
	Duration       *string  `yaml:"duration,omitempty"`
	SampleInterval *string  `yaml:"sample-interval,omitempty"`
	EventBuffer    *int     `yaml:"event-buffer,omitempty"`
}

type ServerYAML struct {
	ListenAddr    string `yaml:"listen-addr,omitempty"`
	Port          *int   `yaml:"port,omitempty"`
	EnableMetrics *bool  `yaml:"enable-metrics,omitempty"`
}

type MQTTYAML struct {
	Broker      string  `yaml:"broker,omitempty"`
	TopicPrefix *string `yaml:"topic-prefix,omitempty"`
	ClientID    string  `yaml:"client-id,omitempty"`
	Username    string  `yaml:"username,omitempty"`
	Password    string  `yaml:"password,omitempty"`
	QoS         *int    `yaml:"qos,omitempty"`
}

func (c ConfigYAML) apply(config *ConfigData) error {
	config.Log = LogData{
		Debug:      c.Log.Debug,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}

	if c.Instrument.Port != "" {
		config.Instrument.Port = c.Instrument.Port
	}
	if c.Instrument.Baud != nil {
		config.Instrument.Baud = *c.Instrument.Baud
	}
	if err := setDuration(&config.Instrument.ReadTimeout, "instrument.read-timeout", c.Instrument.ReadTimeout); err != nil {
		return err
	}
	if err := setDuration(&config.Instrument.SettleDelay, "instrument.settle-delay", c.Instrument.SettleDelay); err != nil {
		return err
	}

	if c.Test.TargetHz != nil {
		config.Test.TargetHz = *c.Test.TargetHz
	}
	if c.Test.Tolerance != nil {
		config.Test.Tolerance = *c.Test.Tolerance
	}
	if c.Test.ToleranceUnit != nil {
		config.Test.ToleranceUnit = *c.Test.ToleranceUnit
	}
	if err := setDuration(&config.Test.Duration, "test.duration", c.Test.Duration); err != nil {
		return err
	}
	if err := setDuration(&config.Test.SampleInterval, "test.sample-interval", c.Test.SampleInterval); err != nil {
		return err
	}
	if c.Test.EventBuffer != nil {
		config.Test.EventBuffer = *c.Test.EventBuffer
	}

	if c.Server.ListenAddr != "" {
		config.Server.ListenAddr = c.Server.ListenAddr
	}
	if c.Server.Port != nil {
		config.Server.Port = *c.Server.Port
	}
	if c.Server.EnableMetrics != nil {
		config.Server.EnableMetrics = *c.Server.EnableMetrics
	}

	config.MQTT.Broker = c.MQTT.Broker
	config.MQTT.ClientID = c.MQTT.ClientID
	config.MQTT.Username = c.MQTT.Username
	config.MQTT.Password = c.MQTT.Password
	if c.MQTT.TopicPrefix != nil {
		config.MQTT.TopicPrefix = *c.MQTT.TopicPrefix
	}
	if c.MQTT.QoS != nil {
		config.MQTT.QoS = *c.MQTT.QoS
	}

	return nil
}

func setDuration(dst *time.Duration, key string, raw *string) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = d
	return nil
}
