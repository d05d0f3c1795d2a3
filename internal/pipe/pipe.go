// File: internal/pipe/pipe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded byte pipe connecting an engine callback to a caller goroutine.
// One end is non-blocking and lives on the agent goroutine (the engine
// callbacks must never block); the other end blocks the caller. Whenever
// the blocking end makes progress that the non-blocking end was starved
// for, the pipe fires the installed waker, which is how a paused transfer
// gets resumed.
//
// A pipe is used in both directions: response bodies are written
// non-blocking by the agent and read blocking by the caller; streaming
// request bodies are written blocking by the caller and read non-blocking
// by the agent.

package pipe

import (
	"io"
	"sync"

	"github.com/momentics/hioload-http/api"
)

// Pipe is a fixed-capacity ring of bytes with one blocking and one
// non-blocking end.
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond // wakes the blocking end

	buf    []byte
	start  int
	length int

	waker   api.Waker // wakes the non-blocking end
	starved bool      // non-blocking end hit WouldBlock and awaits the waker

	wclosed bool
	rclosed bool
	werr    error // terminal error set by CloseWrite; nil means clean EOF
}

// New creates a pipe holding up to capacity buffered bytes.
func New(capacity int) *Pipe {
	p := &Pipe{
		buf:   make([]byte, capacity),
		waker: api.NopWaker,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetWaker installs the waker fired when the blocking end makes the
// progress the non-blocking end was waiting for. Must be set before the
// non-blocking end is used from another goroutine.
func (p *Pipe) SetWaker(w api.Waker) {
	p.mu.Lock()
	p.waker = w
	p.mu.Unlock()
}

// WriteNonblock copies as much of b as fits into the pipe. It returns
// api.ErrWouldBlock when the pipe is full and io.ErrClosedPipe when the
// reading end has been closed. It never blocks.
func (p *Pipe) WriteNonblock(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rclosed {
		return 0, io.ErrClosedPipe
	}
	if p.wclosed {
		return 0, io.ErrClosedPipe
	}

	n := p.push(b)
	if n == 0 && len(b) > 0 {
		p.starved = true
		return 0, api.ErrWouldBlock
	}
	p.cond.Broadcast()
	return n, nil
}

// ReadNonblock copies buffered bytes into b. It returns api.ErrWouldBlock
// when the pipe is empty but still open, and the terminal error (or
// io.EOF) once the writing end has closed and the buffer is drained. It
// never blocks.
func (p *Pipe) ReadNonblock(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.length > 0 {
		n := p.pop(b)
		p.cond.Broadcast()
		return n, nil
	}
	if p.wclosed {
		if p.werr != nil {
			return 0, p.werr
		}
		return 0, io.EOF
	}
	p.starved = true
	return 0, api.ErrWouldBlock
}

// WriteWait writes all of b, blocking while the pipe is full. It returns
// io.ErrClosedPipe if the reading end goes away first.
func (p *Pipe) WriteWait(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var written int
	for written < len(b) {
		if p.rclosed || p.wclosed {
			return written, io.ErrClosedPipe
		}
		n := p.push(b[written:])
		if n == 0 {
			p.cond.Wait()
			continue
		}
		written += n
		p.wakeLocked()
	}
	return written, nil
}

// ReadWait reads at least one byte into b, blocking while the pipe is
// empty. At end of stream it returns the terminal error set by CloseWrite,
// or io.EOF for a clean close.
func (p *Pipe) ReadWait(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.length > 0 {
			n := p.pop(b)
			p.wakeLocked()
			return n, nil
		}
		if p.wclosed {
			if p.werr != nil {
				return 0, p.werr
			}
			return 0, io.EOF
		}
		if p.rclosed {
			return 0, io.ErrClosedPipe
		}
		p.cond.Wait()
	}
}

// CloseWrite marks the writing end closed. A nil err means a clean end of
// stream; otherwise readers observe err once the buffer drains. The first
// call wins.
func (p *Pipe) CloseWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wclosed {
		return
	}
	p.wclosed = true
	p.werr = err
	p.cond.Broadcast()
	p.wakeLocked()
}

// CloseRead marks the reading end closed. Subsequent non-blocking writes
// report io.ErrClosedPipe so the producer can stop.
func (p *Pipe) CloseRead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rclosed {
		return
	}
	p.rclosed = true
	p.cond.Broadcast()
	p.wakeLocked()
}

// Buffered reports the number of bytes currently in the pipe.
func (p *Pipe) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length
}

// wakeLocked fires the waker if the non-blocking end is starved. Called
// with mu held; the waker itself only enqueues a message and notifies the
// selector, so invoking it under the lock is fine.
func (p *Pipe) wakeLocked() {
	if p.starved {
		p.starved = false
		p.waker.Wake()
	}
}

func (p *Pipe) push(b []byte) int {
	free := len(p.buf) - p.length
	if free == 0 {
		return 0
	}
	n := len(b)
	if n > free {
		n = free
	}
	end := (p.start + p.length) % len(p.buf)
	first := copy(p.buf[end:], b[:n])
	if first < n {
		copy(p.buf, b[first:n])
	}
	p.length += n
	return n
}

func (p *Pipe) pop(b []byte) int {
	n := len(b)
	if n > p.length {
		n = p.length
	}
	first := copy(b[:n], p.buf[p.start:min(p.start+n, len(p.buf))])
	if first < n {
		copy(b[first:n], p.buf)
	}
	p.start = (p.start + n) % len(p.buf)
	p.length -= n
	if p.length == 0 {
		p.start = 0
	}
	return n
}
