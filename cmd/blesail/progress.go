package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/blesail/internal/connector"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows the connector state with elapsed time on one line.
//
//	p := NewProgressPrinter(os.Stderr, "Connecting to sensor")
//	p.Start()
//	defer p.Stop()
//
// It stops by itself once the connector reaches Streaming, Failed or Closed.
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	out       io.Writer
	prefix    string
	state     atomic.Int32
	startTime time.Time

	mu      sync.Mutex // serializes writes to out
	started atomic.Bool
	once    sync.Once
	stop    chan struct{}
	done    chan struct{}
}

// NewProgressPrinter creates a progress printer that counts up
func NewProgressPrinter(out io.Writer, prefix string) *ProgressPrinter {
	return &ProgressPrinter{
		out:    out,
		prefix: prefix,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// phaseName is the user-facing name of a connector state
func phaseName(s connector.State) string {
	switch s {
	case connector.Idle, connector.Requesting:
		return "scanning"
	case connector.Connected:
		return "connected"
	case connector.Subscribing:
		return "subscribing"
	default:
		return s.String()
	}
}

func isFinal(s connector.State) bool {
	return s == connector.Streaming || s == connector.Failed || s == connector.Closed
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()
	p.print()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.print()
			}
		}
	}()
}

func (p *ProgressPrinter) print() {
	phase := phaseName(connector.State(p.state.Load()))
	seconds := int(time.Since(p.startTime).Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Update records a connector state; a final state stops the printer.
// Safe to call from any goroutine.
func (p *ProgressPrinter) Update(s connector.State) {
	p.state.Store(int32(s))
	if isFinal(s) {
		p.Stop()
	}
}

// Stop stops the display and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.once.Do(func() {
		close(p.stop)
		if p.started.Load() {
			<-p.done
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprint(p.out, clearLineSequence)
	})
}
