// Package sink holds the output side of blesail: the places decoded values are written to.
//
// Every data source owns exactly one Sink for its lifetime and is the only
// writer of it. Sinks backed by a shared resource (the terminal board, a line
// stream, a PTY) hand out one Sink per source and serialize internally.
package sink

import (
	"sync"
	"sync/atomic"
)

// Sink receives the latest decoded text of one data source
type Sink interface {
	SetText(text string)
}

// Func adapts a plain function to a Sink
type Func func(text string)

// SetText calls f(text)
func (f Func) SetText(text string) {
	f(text)
}

// Discard drops everything written to it
var Discard Sink = Func(func(string) {})

// Text is an in-memory sink keeping the last value written.
// It is safe for concurrent use.
type Text struct {
	mu      sync.RWMutex
	text    string
	updates atomic.Int64
	notify  chan struct{}
}

// NewText creates an empty Text sink
func NewText() *Text {
	return &Text{notify: make(chan struct{}, 1)}
}

// SetText stores text and signals Changed
func (t *Text) SetText(text string) {
	t.mu.Lock()
	t.text = text
	t.mu.Unlock()

	t.updates.Add(1)
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Get returns the last value written, or "" if none
func (t *Text) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text
}

// Updates returns how many times SetText was called
func (t *Text) Updates() int64 {
	return t.updates.Load()
}

// Changed is signalled (coalesced) after every SetText
func (t *Text) Changed() <-chan struct{} {
	return t.notify
}
