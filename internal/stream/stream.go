// Package stream provides a push-based, single-subscriber stream with
// overwrite-oldest buffering.
//
// A Stream carries every notification of one characteristic from the BLE
// callback (the producer) to the goroutine that decodes and displays it (the
// subscriber). Producers never block; if the subscriber lags, the oldest
// pending value is discarded and counted.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default number of pending values per stream
const DefaultCapacity = 64

var (
	// ErrAlreadyConsumed is returned when a second subscriber tries to consume a stream
	ErrAlreadyConsumed = errors.New("stream already has a subscriber")

	// ErrClosed is returned by Consume when the stream was closed by its producer
	ErrClosed = errors.New("stream closed")
)

// Stream is a bounded channel-like buffer with overwrite-oldest semantics.
//
// # Example
//
//	s := stream.New[[]byte](3)
//
//	// Producer: always succeeds, drops oldest if full.
//	for i := 0; i < 10; i++ {
//	    s.Push([]byte{byte(i)})
//	}
//	s.Close()
//
//	// Subscriber: exactly one.
//	_ = s.Consume(ctx, func(v []byte) { fmt.Println("got:", v) })
//
// In the example above, only the *last 3* values will be printed because
// earlier ones were overwritten.
//
// A Stream is not restartable: once closed it stays closed, and it can be consumed only once.
type Stream[T any] struct {
	ch       chan T
	mu       sync.RWMutex
	closed   bool
	consumed atomic.Bool
	metrics  Metrics
}

// New creates a Stream with the given capacity.
func New[T any](capacity int) *Stream[T] {
	if capacity <= 0 {
		panic("stream: capacity must be > 0")
	}
	return &Stream[T]{ch: make(chan T, capacity)}
}

// Push inserts a value. If the buffer is full, it discards the oldest.
// Push never blocks; after Close it drops the value and returns false.
func (s *Stream[T]) Push(v T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.metrics.addRejected()
		return false
	}

	for {
		select {
		case s.ch <- v:
			s.metrics.addWritten()
			return true
		default:
			select {
			case <-s.ch: // drop oldest
				s.metrics.addOverwritten()
			default:
			}
		}
	}
}

// Consume delivers values to fn, in push order, until ctx is done or the stream is closed and drained.
// Returns ctx.Err() on cancellation, ErrClosed after the last buffered value of a closed stream,
// or ErrAlreadyConsumed if another subscriber is attached.
func (s *Stream[T]) Consume(ctx context.Context, fn func(T)) error {
	if !s.consumed.CompareAndSwap(false, true) {
		return ErrAlreadyConsumed
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-s.ch:
			if !ok {
				return ErrClosed
			}
			s.metrics.addProcessed()
			fn(v)
		}
	}
}

// Close ends the stream. Buffered values are still delivered to the subscriber.
// Close is idempotent.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Len returns the number of buffered values.
func (s *Stream[T]) Len() int {
	return len(s.ch)
}

// Cap returns the stream capacity.
func (s *Stream[T]) Cap() int {
	return cap(s.ch)
}

// GetMetrics returns a snapshot of current metrics values.
// All reads are atomic and thread-safe.
func (s *Stream[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&s.metrics.Processed),
		Written:     atomic.LoadInt64(&s.metrics.Written),
		Overwritten: atomic.LoadInt64(&s.metrics.Overwritten),
		Rejected:    atomic.LoadInt64(&s.metrics.Rejected),
	}
}

// Metrics provides lock-free metrics tracking for Stream.
//
// All fields use atomic operations for thread-safe access
type Metrics struct {
	Processed   int64 // values delivered to the subscriber
	Written     int64 // values accepted by Push
	Overwritten int64 // values discarded because the subscriber lagged
	Rejected    int64 // values pushed after Close
}

func (m *Metrics) addProcessed() {
	atomic.AddInt64(&m.Processed, 1)
}

func (m *Metrics) addWritten() {
	atomic.AddInt64(&m.Written, 1)
}

func (m *Metrics) addOverwritten() {
	atomic.AddInt64(&m.Overwritten, 1)
}

func (m *Metrics) addRejected() {
	atomic.AddInt64(&m.Rejected, 1)
}
