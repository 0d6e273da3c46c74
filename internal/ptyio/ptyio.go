// Package ptyio publishes a byte stream on a pseudo-terminal.
//
// NewPty opens a master/slave pair with github.com/creack/pty. Another program
// (a chart plotter, a serial-console logger, `cat`) opens the slave path and
// reads what blesail writes:
//
//	p, err := ptyio.NewPty(&ptyio.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//	fmt.Println("reading on", p.TTYName())
//	p.Write([]byte("wind_speed=5.5\r\n"))
//
// Write never blocks. Bytes go to a ring buffer that a background goroutine
// flushes into the master FD. When nobody reads the slave the kernel buffer
// fills up, then the ring does, and further bytes are dropped and counted.
package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/blesail/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// DefaultWriteCap is the ring capacity in bytes
const DefaultWriteCap = 4096

// Options configures NewPty. Zero values are filled from the default tags.
type Options struct {
	WriteCap     int           `default:"4096"` // ring capacity in bytes
	PollInterval time.Duration `default:"50ms"` // upper bound on shutdown latency of the flush loop
	Logger       *logrus.Logger

	// OnError is called at most once, from the flush goroutine, when the loop stops on an I/O error
	OnError func(err error)
}

// PTY is a non-blocking writer to a pseudo-terminal slave
type PTY interface {
	io.WriteCloser
	Stats() Stats
	TTYName() string // slave device path, e.g. /dev/pts/4
}

// Stats are the write counters of a PTY
type Stats struct {
	WriteQueueLen     int32  // bytes waiting in the ring
	WriteQueueCap     int32  // ring capacity
	DroppedWriteCount uint64 // bytes lost to ring overflow
	WriteBytesTotal   uint64 // bytes handed to the master FD
}

type master struct {
	opts    Options
	logger  *logrus.Entry
	master  *os.File
	slave   *os.File // kept open so the device node survives readers coming and going
	ttyName string
	ring    *ringbuffer.RingBuffer

	cancel  context.CancelFunc
	flushed chan struct{}
	errOnce sync.Once
	closed  atomic.Bool

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewPty opens a pseudo-terminal pair and starts flushing writes to it
func NewPty(opts *Options) (PTY, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.WriteCap <= 0 {
		o.WriteCap = DefaultWriteCap
	}

	logger := o.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	mfd, sfd, err := openPair()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &master{
		opts:    o,
		logger:  logger.WithField("tty", sfd.Name()),
		master:  mfd,
		slave:   sfd,
		ttyName: sfd.Name(),
		ring:    ringbuffer.New(o.WriteCap),
		cancel:  cancel,
		flushed: make(chan struct{}),
	}

	groutine.Go(ctx, "pty-flush", m.flushLoop)

	m.logger.WithField("write_cap", o.WriteCap).Info("PTY created")
	return m, nil
}

func (m *master) flushLoop(ctx context.Context) {
	defer close(m.flushed)
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("panic", r).Error("PTY flush loop panicked")
		}
	}()

	buf := make([]byte, DefaultWriteCap)
	idle := m.opts.PollInterval / 5
	for ctx.Err() == nil {
		n, err := m.ring.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			m.logger.WithError(err).Warn("PTY ring read failed")
			continue
		}
		if n == 0 {
			time.Sleep(idle)
			continue
		}
		if err := m.flush(ctx, buf[:n]); err != nil {
			if !errors.Is(err, context.Canceled) {
				m.fail(err)
			}
			return
		}
	}
}

// flush writes chunk to the master FD, waiting on poll while the slave side is not reading
func (m *master) flush(ctx context.Context, chunk []byte) error {
	fds := []unix.PollFd{{Fd: int32(m.master.Fd()), Events: unix.POLLOUT}}
	timeout := int(m.opts.PollInterval / time.Millisecond)

	for len(chunk) > 0 {
		n, err := m.master.Write(chunk)
		if n > 0 {
			chunk = chunk[n:]
			m.written.Add(uint64(n))
		}

		switch {
		case err == nil, errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			if _, perr := unix.Poll(fds, timeout); perr != nil && !errors.Is(perr, syscall.EINTR) {
				m.logger.WithError(perr).Warn("PTY poll failed")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
			// Close won the race with this write
			return context.Canceled
		default:
			return err
		}
	}
	return nil
}

func (m *master) fail(err error) {
	m.logger.WithError(err).Warn("PTY flush loop stopped")
	if m.opts.OnError == nil {
		return
	}
	m.errOnce.Do(func() {
		m.opts.OnError(fmt.Errorf("pty %s: %w", m.ttyName, err))
	})
}

// Write queues data for the slave and returns the number of bytes queued,
// which is less than len(data) when the ring is full. It returns os.ErrClosed
// after Close.
func (m *master) Write(data []byte) (int, error) {
	if m.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := m.ring.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n, err
	}
	if lost := len(data) - n; lost > 0 {
		m.dropped.Add(uint64(lost))
		m.logger.WithFields(logrus.Fields{"dropped": lost, "queued": n}).Debug("PTY ring full")
	}
	return n, nil
}

// Close stops the flush loop and closes both ends. It is idempotent.
func (m *master) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cancel()

	// a blocked write returns EBADF once the FDs are gone
	var errs []error
	if err := m.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY master: %w", err))
	}
	if err := m.slave.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY slave: %w", err))
	}

	wait := 3*m.opts.PollInterval + time.Second
	select {
	case <-m.flushed:
	case <-time.After(wait):
		m.logger.WithField("timeout", wait).Error("PTY flush loop did not stop")
	}

	if len(errs) > 0 {
		m.logger.WithError(errors.Join(errs...)).Warn("PTY close incomplete")
	}
	return nil
}

func (m *master) Stats() Stats {
	return Stats{
		WriteQueueLen:     int32(m.ring.Length()),
		WriteQueueCap:     int32(m.ring.Capacity()),
		DroppedWriteCount: m.dropped.Load(),
		WriteBytesTotal:   m.written.Load(),
	}
}

func (m *master) TTYName() string {
	return m.ttyName
}

// openPair opens the pseudo-terminal with a raw slave and a non-blocking master
func openPair() (*os.File, *os.File, error) {
	mfd, sfd, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	setup := func() error {
		if _, err := term.MakeRaw(int(sfd.Fd())); err != nil {
			return fmt.Errorf("failed to set PTY %s to raw mode: %w", sfd.Name(), err)
		}
		if err := syscall.SetNonblock(int(mfd.Fd()), true); err != nil {
			return fmt.Errorf("failed to set PTY %s to nonblocking mode: %w", sfd.Name(), err)
		}
		return nil
	}
	if err := setup(); err != nil {
		return nil, nil, errors.Join(err, mfd.Close(), sfd.Close())
	}
	return mfd, sfd, nil
}
