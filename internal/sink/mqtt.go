package sink

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Publisher is the part of an MQTT client the sink needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions configures an MQTT sink. Zero values are filled from the default tags.
type MQTTOptions struct {
	Broker         string        // e.g. tcp://localhost:1883
	ClientID       string        // empty = "blesail-" plus a random suffix
	Username       string        //
	Password       string        //
	TopicPrefix    string        `default:"blesail"`
	QoS            int           `default:"0"`
	Retained       bool          // keep the last value of every topic on the broker
	ConnectTimeout time.Duration `default:"10s"`
	PublishTimeout time.Duration `default:"2s"`
}

// MQTT publishes every update to <prefix>/<source name>, payload is the decoded text.
type MQTT struct {
	client     Publisher
	disconnect func()
	opts       MQTTOptions
	logger     *logrus.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewMQTT creates a sink on an already connected client
func NewMQTT(client Publisher, opts *MQTTOptions, logger *logrus.Logger) *MQTT {
	o := MQTTOptions{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	o.TopicPrefix = strings.Trim(o.TopicPrefix, "/")

	if logger == nil {
		logger = logrus.New()
	}
	return &MQTT{client: client, disconnect: func() {}, opts: o, logger: logger}
}

// DialMQTT connects to the broker and returns a sink publishing on it
func DialMQTT(opts *MQTTOptions, logger *logrus.Logger) (*MQTT, error) {
	if opts == nil || opts.Broker == "" {
		return nil, errors.New("mqtt broker address is required")
	}
	o := *opts
	defaults.SetDefaults(&o)
	if o.ClientID == "" {
		o.ClientID = "blesail-" + uuid.NewString()[:8]
	}

	co := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(o.ConnectTimeout)
	if o.Username != "" {
		co.SetUsername(o.Username)
		if o.Password != "" {
			co.SetPassword(o.Password)
		}
	}

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out after %s", o.Broker, o.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", o.Broker, err)
	}

	m := NewMQTT(client, &o, logger)
	m.disconnect = func() { client.Disconnect(250) }
	m.logger.WithFields(logrus.Fields{"broker": o.Broker, "client_id": o.ClientID}).Info("MQTT connected")
	return m, nil
}

// Topic returns the topic of a source
func (m *MQTT) Topic(name string) string {
	if m.opts.TopicPrefix == "" {
		return name
	}
	return m.opts.TopicPrefix + "/" + name
}

// Sink returns the sink of one named source
func (m *MQTT) Sink(name string) Sink {
	topic := m.Topic(name)
	return Func(func(text string) {
		m.publish(topic, text)
	})
}

// publish waits for the broker ack so a stalled broker only slows this source
func (m *MQTT) publish(topic, text string) {
	token := m.client.Publish(topic, byte(m.opts.QoS), m.opts.Retained, text)

	var err error
	switch {
	case !token.WaitTimeout(m.opts.PublishTimeout):
		err = fmt.Errorf("publish timed out after %s", m.opts.PublishTimeout)
	default:
		err = token.Error()
	}

	if err == nil {
		m.published.Add(1)
		return
	}
	if m.failed.Add(1) == 1 {
		m.logger.WithFields(logrus.Fields{"topic": topic, "error": err}).Warn("MQTT publish failed")
	} else {
		m.logger.WithFields(logrus.Fields{"topic": topic, "error": err}).Debug("MQTT publish failed")
	}
}

// Published returns the number of acknowledged publishes
func (m *MQTT) Published() int64 { return m.published.Load() }

// Failed returns the number of publishes that errored or timed out
func (m *MQTT) Failed() int64 { return m.failed.Load() }

// Close disconnects from the broker when the sink owns the client
func (m *MQTT) Close() error {
	m.disconnect()
	return nil
}
