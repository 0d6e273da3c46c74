package connector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/device"
	"github.com/srg/blesail/internal/groutine"
	"github.com/srg/blesail/internal/profile"
	"github.com/srg/blesail/internal/stream"
)

// ErrAlreadyStarted is returned by a second Connect on the same Connector
var ErrAlreadyStarted = errors.New("connector already started")

// Result is the outcome of one descriptor subscription chain
type Result struct {
	Index      int
	Descriptor profile.Descriptor
	Stage      Stage // the stage that failed, or StageStreaming on success
	Err        error
}

// OK reports whether the descriptor is streaming
func (r Result) OK() bool {
	return r.Err == nil
}

// Options configures a Connector. Zero values are filled from the default tags.
type Options struct {
	Filter       device.Filter
	Request      *device.RequestOptions
	StreamBuffer int `default:"64"` // pending payloads per descriptor before the oldest is dropped

	OnState  func(State)  // called on every state change, from the goroutine causing it
	OnResult func(Result) // called once per descriptor when its chain ends
	Logger   *logrus.Logger
}

// Connector runs one connection attempt for a fixed list of descriptors.
// It is single-use: after Failed or Closed a new Connector is needed.
type Connector struct {
	central     device.Central
	descriptors []profile.Descriptor
	opts        Options
	logger      *logrus.Logger

	state   atomic.Int32
	started atomic.Bool
}

// New creates a connector. descriptors is copied.
func New(central device.Central, descriptors []profile.Descriptor, opts *Options) *Connector {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.StreamBuffer <= 0 {
		o.StreamBuffer = stream.DefaultCapacity
	}

	logger := o.Logger
	if logger == nil {
		logger = logrus.New()
	}

	ds := make([]profile.Descriptor, len(descriptors))
	copy(ds, descriptors)

	return &Connector{central: central, descriptors: ds, opts: o, logger: logger}
}

// State returns the current state
func (c *Connector) State() State {
	return State(c.state.Load())
}

func (c *Connector) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	c.logger.WithFields(logrus.Fields{"from": prev.String(), "to": s.String()}).Debug("Connector state changed")
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// Connect selects a peripheral, connects and subscribes every descriptor.
//
// Device selection and connection failures end the attempt and are returned as
// *device.DeviceSelectionError and *device.ConnectionError. Per-descriptor
// failures do not: they are reported in Session.Results and the session streams
// whatever subscribed. The returned session lives until Close, link loss, or ctx is done.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	c.setState(Requesting)
	peripheral, err := c.central.RequestDevice(ctx, c.opts.Filter, c.opts.Request)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"filter": c.opts.Filter.String(), "error": err}).Error("Device selection failed")
		c.setState(Failed)
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"address": peripheral.Address(),
		"name":    peripheral.Name(),
	}).Info("Device selected")

	conn, err := peripheral.Connect(ctx)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"address": peripheral.Address(), "error": err}).Error("Connection failed")
		c.setState(Failed)
		return nil, err
	}
	c.setState(Connected)

	s := newSession(ctx, c, peripheral, conn)

	c.setState(Subscribing)
	c.logger.WithField("descriptors", len(c.descriptors)).Info("Subscribing...")

	var chains groutine.Group
	results := make([]Result, len(c.descriptors))
	for i, d := range c.descriptors {
		chains.Go(s.ctx, "subscribe-"+d.Name, func(ctx context.Context) {
			results[i] = s.subscribe(ctx, i, d)
			if c.opts.OnResult != nil {
				c.opts.OnResult(results[i])
			}
		})
	}
	chains.Wait()
	s.setResults(results)

	if err := s.ctx.Err(); err != nil {
		// cancelled or link lost while subscribing; Err reports the cause
		s.finish(nil)
		if cause := s.Err(); cause != nil {
			return nil, cause
		}
		return nil, fmt.Errorf("subscription interrupted: %w", ctx.Err())
	}

	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	c.logger.WithFields(logrus.Fields{
		"subscribed": ok,
		"failed":     len(results) - ok,
	}).Info("Subscription phase completed")

	c.setState(Streaming)
	s.watch()
	return s, nil
}
