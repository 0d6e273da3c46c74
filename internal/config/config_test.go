package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, logrus.PanicLevel, cfg.LogLevel, "logging MUST be silent by default")
	assert.Equal(t, "wind", cfg.Profile)
	assert.Equal(t, OutputBoard, cfg.Output)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 64, cfg.StreamBuffer)
	assert.Equal(t, 0, cfg.History)
	assert.Equal(t, 200*time.Millisecond, cfg.Interval)
	assert.Equal(t, time.Second, cfg.SimInterval)
	assert.Equal(t, "blesail", cfg.MQTT.Topic, "nested MQTT defaults MUST be applied")
	assert.Empty(t, cfg.MetricsAddr, "metrics MUST be off by default")
	assert.NoError(t, cfg.Validate(), "defaults MUST be valid")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"output", func(c *Config) { c.Output = "json" }, `invalid output "json" (must be board, lines, pty, mqtt)`},
		{"mqtt without broker", func(c *Config) { c.Output = OutputMQTT }, `output "mqtt" requires a broker address`},
		{"mqtt qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt qos must be 0, 1 or 2, got 3"},
		{"scan timeout", func(c *Config) { c.ScanTimeout = 0 }, "scan timeout must be positive, got 0s"},
		{"connect timeout", func(c *Config) { c.ConnectTimeout = -time.Second }, "connect timeout must be positive, got -1s"},
		{"stream buffer", func(c *Config) { c.StreamBuffer = 0 }, "stream buffer must be positive, got 0"},
		{"history", func(c *Config) { c.History = -1 }, "history must not be negative, got -1"},
		{"interval", func(c *Config) { c.Interval = 0 }, "interval must be positive, got 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.EqualError(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for name, want := range map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
	} {
		got, err := ParseLogLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLogLevel("trace")
	assert.EqualError(t, err, "invalid log level: trace (must be debug, info, warn, or error)")
}

func TestConfig_NewLogger(t *testing.T) {
	for _, level := range []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		t.Run(level.String(), func(t *testing.T) {
			logger := (&Config{LogLevel: level}).NewLogger()

			assert.Equal(t, level, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok, "formatter MUST be a TextFormatter")
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
