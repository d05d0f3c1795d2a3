// File: internal/pipe/pipe_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipe

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-http/api"
)

func TestPipe_NonblockRoundTrip(t *testing.T) {
	p := New(16)

	n, err := p.WriteNonblock([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("WriteNonblock = %d, %v", n, err)
	}

	buf := make([]byte, 16)
	n, err = p.ReadNonblock(buf)
	if err != nil || n != 5 || string(buf[:5]) != "hello" {
		t.Fatalf("ReadNonblock = %d, %v, %q", n, err, buf[:n])
	}

	if _, err := p.ReadNonblock(buf); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("read from empty pipe = %v, want ErrWouldBlock", err)
	}
}

func TestPipe_WriteNonblockFullThenWakeOnDrain(t *testing.T) {
	p := New(4)
	var woken atomic.Int32
	p.SetWaker(api.WakerFunc(func() { woken.Add(1) }))

	if n, err := p.WriteNonblock([]byte("abcd")); err != nil || n != 4 {
		t.Fatalf("WriteNonblock = %d, %v", n, err)
	}
	if _, err := p.WriteNonblock([]byte("x")); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("write to full pipe = %v, want ErrWouldBlock", err)
	}
	if woken.Load() != 0 {
		t.Fatal("waker fired before any drain")
	}

	buf := make([]byte, 2)
	if _, err := p.ReadWait(buf); err != nil {
		t.Fatalf("ReadWait: %v", err)
	}
	if woken.Load() != 1 {
		t.Fatalf("waker fired %d times after drain, want 1", woken.Load())
	}

	// No starvation pending anymore, further reads stay silent.
	if _, err := p.ReadWait(buf); err != nil {
		t.Fatalf("ReadWait: %v", err)
	}
	if woken.Load() != 1 {
		t.Fatalf("waker fired %d times, want 1", woken.Load())
	}
}

func TestPipe_ReadNonblockWakeOnFill(t *testing.T) {
	p := New(8)
	var woken atomic.Int32
	p.SetWaker(api.WakerFunc(func() { woken.Add(1) }))

	if _, err := p.ReadNonblock(make([]byte, 4)); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("read from empty pipe = %v, want ErrWouldBlock", err)
	}

	if _, err := p.WriteWait([]byte("hi")); err != nil {
		t.Fatalf("WriteWait: %v", err)
	}
	if woken.Load() != 1 {
		t.Fatalf("waker fired %d times after fill, want 1", woken.Load())
	}
}

func TestPipe_BlockingReadSeesConcurrentWrites(t *testing.T) {
	p := New(8)
	payload := bytes.Repeat([]byte("0123456789"), 100)

	go func() {
		off := 0
		for off < len(payload) {
			n, err := p.WriteNonblock(payload[off:])
			if err != nil {
				// Full: wait for the reader to catch up.
				if !errors.Is(err, api.ErrWouldBlock) {
					return
				}
				time.Sleep(time.Millisecond)
				continue
			}
			off += n
		}
		p.CloseWrite(nil)
	}()

	got, err := io.ReadAll(readWaiter{p})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read %d bytes, want %d", len(got), len(payload))
	}
}

func TestPipe_CloseWriteWithError(t *testing.T) {
	p := New(8)
	want := errors.New("boom")

	p.WriteNonblock([]byte("ab"))
	p.CloseWrite(want)

	buf := make([]byte, 8)
	if n, err := p.ReadWait(buf); err != nil || n != 2 {
		t.Fatalf("buffered data lost on CloseWrite: %d, %v", n, err)
	}
	if _, err := p.ReadWait(buf); !errors.Is(err, want) {
		t.Fatalf("terminal error = %v, want %v", err, want)
	}
}

func TestPipe_CloseReadStopsWriter(t *testing.T) {
	p := New(8)
	p.CloseRead()

	if _, err := p.WriteNonblock([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("write after CloseRead = %v, want io.ErrClosedPipe", err)
	}
	if _, err := p.WriteWait([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("WriteWait after CloseRead = %v, want io.ErrClosedPipe", err)
	}
}

func TestPipe_CloseReadWakesStarvedWriter(t *testing.T) {
	p := New(2)
	var woken atomic.Int32
	p.SetWaker(api.WakerFunc(func() { woken.Add(1) }))

	p.WriteNonblock([]byte("ab"))
	if _, err := p.WriteNonblock([]byte("c")); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("expected full pipe, got %v", err)
	}

	p.CloseRead()
	if woken.Load() != 1 {
		t.Fatalf("waker fired %d times after CloseRead, want 1", woken.Load())
	}
}

// readWaiter adapts ReadWait to io.Reader for the tests.
type readWaiter struct{ p *Pipe }

func (r readWaiter) Read(b []byte) (int, error) { return r.p.ReadWait(b) }
