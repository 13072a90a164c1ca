package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/freqtest/internal/frequency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "freqtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
log:
  debug: true
  file: /var/log/freqtest.log
  max-size-mb: 5
  max-backups: 2
instrument:
  port: /dev/ttyACM0
  baud: 9600
  read-timeout: 2s
  settle-delay: 0s
test:
  target-hz: 32768
  tolerance: 20
  tolerance-unit: ppm
  duration: 1m
  sample-interval: 500ms
  event-buffer: 8
server:
  listen-addr: 127.0.0.1
  port: 9090
  enable-metrics: false
mqtt:
  broker: tcp://broker.local:1883
  topic-prefix: lab/counter
  client-id: bench-1
  username: lab
  password: secret
  qos: 1
`)

	p := NewYAMLProvider(path)
	assert.True(t, p.IsReadOnly())
	defer p.Close()

	cfg, err := p.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, LogData{Debug: true, File: "/var/log/freqtest.log", MaxSizeMB: 5, MaxBackups: 2}, cfg.Log)
	assert.Equal(t, InstrumentData{Port: "/dev/ttyACM0", Baud: 9600, ReadTimeout: 2 * time.Second}, cfg.Instrument)
	assert.Equal(t, TestData{
		TargetHz:       32768,
		Tolerance:      20,
		ToleranceUnit:  "ppm",
		Duration:       time.Minute,
		SampleInterval: 500 * time.Millisecond,
		EventBuffer:    8,
	}, cfg.Test)
	assert.Equal(t, ServerData{ListenAddr: "127.0.0.1", Port: 9090}, cfg.Server)
	assert.Equal(t, MQTTData{
		Broker:      "tcp://broker.local:1883",
		TopicPrefix: "lab/counter",
		ClientID:    "bench-1",
		Username:    "lab",
		Password:    "secret",
		QoS:         1,
	}, cfg.MQTT)
	assert.True(t, cfg.MQTT.Enabled())

	params, err := cfg.Parameters()
	require.NoError(t, err)
	assert.Equal(t, frequency.TestParameters{TargetHz: 32768, ToleranceMagnitude: 20, ToleranceUnit: frequency.RelativePPM}, params)

	// Cached after the first load.
	again, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := NewYAMLProvider(writeConfig(t, "instrument:\n  port: COM3\n")).LoadConfig()
	require.NoError(t, err)

	want := Default()
	want.Instrument.Port = "COM3"
	assert.Equal(t, want, cfg)

	params, err := cfg.Parameters()
	require.NoError(t, err)
	assert.Equal(t, frequency.DefaultParameters(), params)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadConfigEmptyDocument(t *testing.T) {
	cfg, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml")).LoadConfig()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseYAMLInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"negative tolerance", "test:\n  tolerance: -1\n"},
		{"zero target", "test:\n  target-hz: 0\n"},
		{"unknown unit", "test:\n  tolerance-unit: percent\n"},
		{"bad duration", "test:\n  duration: soon\n"},
		{"zero duration", "test:\n  duration: 0s\n"},
		{"zero sample interval", "test:\n  sample-interval: 0s\n"},
		{"bad read timeout", "instrument:\n  read-timeout: 1 second\n"},
		{"negative settle delay", "instrument:\n  settle-delay: -5ms\n"},
		{"zero baud", "instrument:\n  baud: 0\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"zero event buffer", "test:\n  event-buffer: 0\n"},
		{"qos out of range", "mqtt:\n  qos: 3\n"},
		{"empty topic with broker", "mqtt:\n  broker: tcp://localhost:1883\n  topic-prefix: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseYAMLMalformed(t *testing.T) {
	_, err := ParseYAML([]byte("test: [unterminated"))
	assert.Error(t, err)
}
