// Package config holds the runtime settings of a blesail session.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Output kinds
const (
	OutputBoard = "board"
	OutputLines = "lines"
	OutputPTY   = "pty"
	OutputMQTT  = "mqtt"
)

var outputs = []string{OutputBoard, OutputLines, OutputPTY, OutputMQTT}

// Config holds application configuration
type Config struct {
	LogLevel       logrus.Level  `yaml:"-"`
	Profile        string        `default:"wind" yaml:"profile"`
	ProfileFile    string        `yaml:"profile_file,omitempty"`
	Address        string        `yaml:"address,omitempty"`
	Output         string        `default:"board" yaml:"output"`
	ScanTimeout    time.Duration `default:"10s" yaml:"scan_timeout"`
	ConnectTimeout time.Duration `default:"30s" yaml:"connect_timeout"`
	StreamBuffer   int           `default:"64" yaml:"stream_buffer"`
	History        int           `default:"0" yaml:"history"`
	Interval       time.Duration `default:"200ms" yaml:"interval"` // board redraw interval
	Simulate       bool          `yaml:"simulate"`
	SimInterval    time.Duration `default:"1s" yaml:"sim_interval"` // simulator notification interval
	MetricsAddr    string        `yaml:"metrics_addr,omitempty"`    // serve Prometheus /metrics here when set
	MQTT           MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig is used by the mqtt output
type MQTTConfig struct {
	Broker   string `yaml:"broker,omitempty"` // tcp://host:1883
	ClientID string `yaml:"client_id,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Topic    string `default:"blesail" yaml:"topic"` // topic prefix, one subtopic per source
	QoS      int    `default:"0" yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: logrus.PanicLevel}
	defaults.SetDefaults(cfg)
	return cfg
}

// Validate checks values that flags cannot constrain
func (c *Config) Validate() error {
	switch c.Output {
	case OutputBoard, OutputLines, OutputPTY:
	case OutputMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("output %q requires a broker address", OutputMQTT)
		}
	default:
		return fmt.Errorf("invalid output %q (must be %s)", c.Output, strings.Join(outputs, ", "))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan timeout must be positive, got %s", c.ScanTimeout)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.StreamBuffer <= 0 {
		return fmt.Errorf("stream buffer must be positive, got %d", c.StreamBuffer)
	}
	if c.History < 0 {
		return fmt.Errorf("history must not be negative, got %d", c.History)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	return nil
}

// ParseLogLevel accepts debug, info, warn and error
func ParseLogLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
