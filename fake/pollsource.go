// File: fake/pollsource.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-http/api"
)

// ErrSocketInvalid is what the fake primitive reports for an injected
// registration failure, standing in for EBADF/EEXIST style races.
var ErrSocketInvalid = errors.New("socket descriptor invalid")

// PollSource is an in-memory api.PollSource. Tests queue readiness events
// and inject transient registration failures; Waits, adds and modifies are
// counted so tests can assert on poll behavior.
type PollSource struct {
	mu         sync.Mutex
	registered map[api.Socket]bool
	pending    []api.PollEvent
	failAdds   map[api.Socket]int

	notify chan struct{}

	WaitCalls   atomic.Int64
	AddCalls    atomic.Int64
	ModifyCalls atomic.Int64
	DeleteCalls atomic.Int64
}

// NewPollSource creates an empty fake primitive.
func NewPollSource() *PollSource {
	return &PollSource{
		registered: make(map[api.Socket]bool),
		failAdds:   make(map[api.Socket]int),
		notify:     make(chan struct{}, 1),
	}
}

// FailAdds makes the next n Add calls for socket fail with
// ErrSocketInvalid, simulating descriptor-reuse races.
func (p *PollSource) FailAdds(socket api.Socket, n int) {
	p.mu.Lock()
	p.failAdds[socket] = n
	p.mu.Unlock()
}

// QueueEvent schedules a readiness event for delivery on the next Wait and
// wakes a blocked Wait. Safe from any goroutine.
func (p *PollSource) QueueEvent(ev api.PollEvent) {
	p.mu.Lock()
	p.pending = append(p.pending, ev)
	p.mu.Unlock()
	p.wake()
}

// Registered reports whether the primitive currently knows the socket.
func (p *PollSource) Registered(socket api.Socket) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered[socket]
}

func (p *PollSource) Add(socket api.Socket, readable, writable bool) error {
	p.AddCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.failAdds[socket]; n > 0 {
		p.failAdds[socket] = n - 1
		return ErrSocketInvalid
	}
	if p.registered[socket] {
		return ErrSocketInvalid // already present, like EEXIST
	}
	p.registered[socket] = true
	return nil
}

func (p *PollSource) Modify(socket api.Socket, readable, writable bool) error {
	p.ModifyCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.registered[socket] {
		return ErrSocketInvalid // unknown socket, like ENOENT
	}
	return nil
}

func (p *PollSource) Delete(socket api.Socket) error {
	p.DeleteCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.registered[socket] {
		return ErrSocketInvalid
	}
	delete(p.registered, socket)
	return nil
}

func (p *PollSource) Wait(events []api.PollEvent, timeout time.Duration) (int, error) {
	p.WaitCalls.Add(1)

	if n := p.take(events); n > 0 {
		return n, nil
	}
	if timeout == 0 {
		return 0, nil
	}

	if timeout < 0 {
		<-p.notify
	} else {
		select {
		case <-p.notify:
		case <-time.After(timeout):
			return 0, nil
		}
	}

	// Woken up: deliver anything queued alongside the notification, or
	// return promptly so the agent can check its messages.
	return p.take(events), nil
}

func (p *PollSource) take(events []api.PollEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(events, p.pending)
	p.pending = p.pending[n:]
	return n
}

func (p *PollSource) Notify() error {
	p.wake()
	return nil
}

func (p *PollSource) Close() error { return nil }

func (p *PollSource) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

var _ api.PollSource = (*PollSource)(nil)
