package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/decode"
	"github.com/srg/blesail/internal/device"
	"github.com/srg/blesail/internal/groutine"
	"github.com/srg/blesail/internal/profile"
	"github.com/srg/blesail/internal/stream"
)

// SourceStats are the counters of one streaming descriptor
type SourceStats struct {
	Name     string
	Received int64 // payloads accepted from notifications
	Dropped  int64 // payloads lost because the consumer lagged
	Decoded  int64 // values written to the sink
	Failed   int64 // payloads the decoder rejected
}

type source struct {
	descriptor profile.Descriptor
	stream     *stream.Stream[[]byte]
	decoded    atomic.Int64
	failed     atomic.Int64
}

// Session is a live connection streaming decoded values into sinks
type Session struct {
	connector  *Connector
	peripheral device.Peripheral
	conn       device.Connection
	logger     *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	consumers groutine.Group

	mu      sync.Mutex
	results []Result
	sources  []*source
	err      error
	closeErr error // from Disconnect

	once sync.Once
	done chan struct{}
}

func newSession(ctx context.Context, c *Connector, p device.Peripheral, conn device.Connection) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		connector:  c,
		peripheral: p,
		conn:       conn,
		logger:     c.logger,
		ctx:        sctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// subscribe runs the chain of one descriptor: service, characteristic, notifications, consumer
func (s *Session) subscribe(ctx context.Context, index int, d profile.Descriptor) Result {
	logger := s.logger.WithFields(logrus.Fields{
		"source":       d.Name,
		"service_uuid": d.Service,
		"char_uuid":    d.Characteristic,
	})
	fail := func(stage Stage, err error) Result {
		logger.WithFields(logrus.Fields{"stage": string(stage), "error": err}).Error("Subscription failed")
		return Result{Index: index, Descriptor: d, Stage: stage, Err: err}
	}

	svc, err := s.conn.GetService(ctx, d.Service)
	if err != nil {
		return fail(StageService, err)
	}
	char, err := svc.GetCharacteristic(ctx, d.Characteristic)
	if err != nil {
		return fail(StageCharacteristic, err)
	}

	src := &source{descriptor: d, stream: stream.New[[]byte](s.connector.opts.StreamBuffer)}
	err = char.StartNotifications(ctx, func(data []byte) {
		// the payload buffer is reused by the host after the callback returns
		src.stream.Push(bytes.Clone(data))
	})
	if err != nil {
		src.stream.Close()
		return fail(StageNotify, err)
	}

	s.mu.Lock()
	s.sources = append(s.sources, src)
	s.mu.Unlock()

	s.consumers.Go(s.ctx, "consume-"+d.Name, func(ctx context.Context) {
		err := src.stream.Consume(ctx, func(payload []byte) {
			s.deliver(src, payload, logger)
		})
		logger.WithField("reason", err).Debug("Consumer stopped")
	})

	logger.Info("Subscribed")
	return Result{Index: index, Descriptor: d, Stage: StageStreaming}
}

// deliver decodes one payload into the descriptor sink. A bad payload or a
// panicking decoder or sink only loses that value.
func (s *Session) deliver(src *source, payload []byte, logger *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			src.failed.Add(1)
			logger.WithField("panic", r).Error("Decoder or sink panicked, value dropped")
		}
	}()

	d := src.descriptor
	text, err := d.Decode(payload)
	if err != nil {
		src.failed.Add(1)
		entry := logger.WithFields(logrus.Fields{"error": err, "payload": fmt.Sprintf("% X", payload)})
		var ferr *decode.FormatError
		if errors.As(err, &ferr) {
			entry.Warn("Malformed payload dropped")
		} else {
			entry.Error("Decode failed")
		}
		return
	}

	d.Sink.SetText(text)
	if d.Log != nil {
		d.Log.Append(text)
	}
	src.decoded.Add(1)
}

func (s *Session) setResults(results []Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = results
}

// watch ends the session on link loss or when the parent context is done
func (s *Session) watch() {
	groutine.Go(context.Background(), "session-watch", func(context.Context) {
		select {
		case <-s.conn.Disconnected():
			s.finish(fmt.Errorf("connection to %s lost: %w", s.peripheral.Name(), device.ErrNotConnected))
		case <-s.ctx.Done():
			s.finish(nil)
		case <-s.done:
		}
	})
}

func (s *Session) finish(cause error) {
	s.once.Do(func() {
		if cause != nil {
			s.logger.WithField("error", cause).Warn("Session ended")
		}

		s.mu.Lock()
		s.err = cause
		sources := s.sources
		s.mu.Unlock()

		s.cancel()
		for _, src := range sources {
			src.stream.Close()
		}
		s.consumers.Wait()

		if err := s.conn.Disconnect(); err != nil {
			s.logger.WithField("error", err).Warn("Disconnect failed")
			s.mu.Lock()
			s.closeErr = fmt.Errorf("disconnect from %s: %w", s.peripheral.Name(), err)
			s.mu.Unlock()
		}

		s.connector.setState(Closed)
		close(s.done)
	})
}

// State returns the connector state
func (s *Session) State() State {
	return s.connector.State()
}

// Peripheral returns the connected peripheral
func (s *Session) Peripheral() device.Peripheral {
	return s.peripheral
}

// Results returns the per-descriptor outcomes in registration order
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Subscribed returns the number of descriptors that are streaming
func (s *Session) Subscribed() int {
	n := 0
	for _, r := range s.Results() {
		if r.OK() {
			n++
		}
	}
	return n
}

// Stats returns the counters of every streaming descriptor
func (s *Session) Stats() []SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceStats, 0, len(s.sources))
	for _, src := range s.sources {
		m := src.stream.GetMetrics()
		out = append(out, SourceStats{
			Name:     src.descriptor.Name,
			Received: m.Written,
			Dropped:  m.Overwritten,
			Decoded:  src.decoded.Load(),
			Failed:   src.failed.Load(),
		})
	}
	return out
}

// Done is closed when the session has ended and every consumer has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended: nil after Close or cancellation, an error wrapping device.ErrNotConnected after link loss
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops all consumers and disconnects. It is idempotent and waits for the
// consumers. The error is the disconnect failure of the session's single
// teardown, whichever call or link loss ran it.
func (s *Session) Close() error {
	s.finish(nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}
