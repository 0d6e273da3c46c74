package ptyio

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPty(t *testing.T, opts *Options) PTY {
	t.Helper()
	p, err := NewPty(opts)
	if err != nil {
		t.Skipf("PTY not available: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestWriteReachesSlave(t *testing.T) {
	// GOAL: Verify bytes written to the master are readable from the slave path
	//
	// TEST SCENARIO: Write a line → open TTYName → read the same bytes back

	p := newTestPty(t, nil)
	require.NotEmpty(t, p.TTYName(), "slave path MUST be known")

	reader, err := os.OpenFile(p.TTYName(), os.O_RDWR|syscall.O_NOCTTY, 0)
	require.NoError(t, err)
	defer reader.Close()

	msg := []byte("wind_speed=5.5\r\n")
	n, err := p.Write(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		var acc []byte
		for len(acc) < len(msg) {
			n, err := reader.Read(buf)
			if err != nil {
				break
			}
			acc = append(acc, buf[:n]...)
		}
		got <- acc
	}()

	select {
	case data := <-got:
		assert.Equal(t, msg, data, "slave MUST receive the written bytes unchanged")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out reading from slave")
	}

	assert.Eventually(t, func() bool {
		return p.Stats().WriteBytesTotal == uint64(len(msg))
	}, time.Second, 5*time.Millisecond)
}

func TestWriteOverflowDrops(t *testing.T) {
	// GOAL: Verify Write never blocks when the ring is full
	//
	// TEST SCENARIO: Tiny ring, nobody reading, large write → short count and dropped bytes counted

	p := newTestPty(t, &Options{WriteCap: 16})

	big := make([]byte, 1<<20)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			_, _ = p.Write(big)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write MUST NOT block")
	}
	assert.NotZero(t, p.Stats().DroppedWriteCount, "overflow MUST be counted")
	assert.Equal(t, int32(16), p.Stats().WriteQueueCap)
}

func TestWriteAfterClose(t *testing.T) {
	p := newTestPty(t, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "Close MUST be idempotent")

	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
