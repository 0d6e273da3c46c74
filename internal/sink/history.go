package sink

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxHistory guards against accidental misconfiguration of a source history size
const MaxHistory = 1 << 16

// Sample is one decoded value and the time it was recorded
type Sample struct {
	Value string
	At    time.Time
}

// History keeps the last N decoded samples of one source.
//
// Append is called from the source consumer and never blocks: samples go into
// an overlapped ring buffer that overwrites the oldest entry when full.
// Readers drain that ring into a window bounded to exactly N samples, because
// the ring may be sized above N.
type History struct {
	limit int
	ring  mpmc.RichOverlappedRingBuffer[Sample]
	now   func() time.Time

	mu     sync.Mutex // guards window and drains of ring
	window []Sample

	appended atomic.Int64
}

// NewHistory creates a history of the last limit samples
func NewHistory(limit int) (*History, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("history size must be > 0, got %d", limit)
	}
	if limit > MaxHistory {
		return nil, fmt.Errorf("history size %d exceeds maximum %d", limit, MaxHistory)
	}

	return &History{
		limit:  limit,
		ring:   mpmc.NewOverlappedRingBuffer[Sample](ringSize(limit)),
		now:    time.Now,
		window: make([]Sample, 0, limit),
	}, nil
}

// Append records a decoded value
func (h *History) Append(value string) {
	if _, err := h.ring.EnqueueM(Sample{Value: value, At: h.now()}); err != nil {
		// the overlapped ring only fails when it is closed; fall back to the locked path
		h.mu.Lock()
		h.pushInternal(Sample{Value: value, At: h.now()})
		h.mu.Unlock()
	}
	h.appended.Add(1)
}

// Snapshot returns the retained samples, oldest first
func (h *History) Snapshot() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.drainInternal()
	out := make([]Sample, len(h.window))
	copy(out, h.window)
	return out
}

// Len returns the number of retained samples
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.drainInternal()
	return len(h.window)
}

// Limit returns the configured size
func (h *History) Limit() int {
	return h.limit
}

// Appended returns the total number of samples ever appended
func (h *History) Appended() int64 {
	return h.appended.Load()
}

// Range returns the numeric minimum and maximum of the retained samples.
// Non-numeric samples are skipped; ok is false when none are numeric.
func (h *History) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range h.Snapshot() {
		v, err := strconv.ParseFloat(s.Value, 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

func (h *History) drainInternal() {
	for !h.ring.IsEmpty() {
		s, err := h.ring.Dequeue()
		if err != nil {
			return
		}
		h.pushInternal(s)
	}
}

func (h *History) pushInternal(s Sample) {
	if len(h.window) == h.limit {
		copy(h.window, h.window[1:])
		h.window = h.window[:h.limit-1]
	}
	h.window = append(h.window, s)
}

// ringSize leaves room for the slot a ring buffer keeps free to tell full from empty
func ringSize(limit int) uint32 {
	n := uint32(4)
	for n < uint32(limit)+1 {
		n <<= 1
	}
	return n
}
