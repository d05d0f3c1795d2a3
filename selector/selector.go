// File: selector/selector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package selector

import (
	"log/slog"
	"time"

	"github.com/momentics/hioload-http/api"
)

// maxEvents bounds the number of readiness events drained per poll.
const maxEvents = 128

// Selector tracks the engine's socket interest set over a readiness
// primitive and can be woken from any goroutine.
type Selector struct {
	source api.PollSource
	logger *slog.Logger

	sockets map[api.Socket]*registration

	// Events observed by the most recent Poll. Sockets in here must be
	// re-armed before the next wait, but not sooner: the engine may
	// deregister or re-register them in the meantime.
	events  []api.PollEvent
	nevents int

	// Poll cycle counter. A registration stamped with the upcoming tick
	// was updated by the engine during this cycle and must not be
	// re-armed a second time by the deferred pass.
	tick uint64
}

// registration records the desired interest for one socket.
type registration struct {
	readable bool
	writable bool
	tick     uint64
	failed   bool // add/modify failed; retry on the next poll cycle
}

// New creates a selector over the given readiness primitive.
func New(source api.PollSource, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		source:  source,
		logger:  logger,
		sockets: make(map[api.Socket]*registration),
		events:  make([]api.PollEvent, maxEvents),
	}
}

// NewDefault creates a selector over the platform readiness primitive.
func NewDefault(logger *slog.Logger) (*Selector, error) {
	source, err := newPlatformSource()
	if err != nil {
		return nil, err
	}
	return New(source, logger), nil
}

// Waker returns a handle that interrupts a blocked Poll. Safe to clone and
// invoke from any goroutine.
func (s *Selector) Waker() api.Waker {
	source := s.source
	return api.WakerFunc(func() {
		_ = source.Notify()
	})
}

// Register begins or updates watching a socket for the given interest.
//
// Registration failures are swallowed on purpose: the engine can reuse a
// descriptor for a new connection while the primitive still remembers the
// old one, and the add/modify can race with the descriptor being closed.
// The socket is retried automatically on the next Poll.
func (s *Selector) Register(socket api.Socket, readable, writable bool) {
	reg, known := s.sockets[socket]
	if !known {
		reg = &registration{}
		s.sockets[socket] = reg
	}
	reg.readable = readable
	reg.writable = writable
	reg.tick = s.tick + 1
	reg.failed = false

	var err error
	if known {
		err = s.modifyOrAdd(socket, reg)
	} else {
		err = s.addOrModify(socket, reg)
	}
	if err != nil {
		reg.failed = true
		s.logger.Debug("socket registration failed, will retry on next poll",
			"socket", int(socket), "error", err)
	}
}

// Deregister stops watching a socket. A socket already forgotten by the
// primitive is treated as success.
func (s *Selector) Deregister(socket api.Socket) {
	delete(s.sockets, socket)
	if err := s.source.Delete(socket); err != nil {
		// The engine has usually closed the descriptor by now, at which
		// point the primitive may have dropped it on its own.
		s.logger.Debug("error removing socket from poller",
			"socket", int(socket), "error", err)
	}
}

// Poll blocks until a registered socket becomes ready, the timeout
// elapses, or a waker fires. It reports whether any socket event occurred.
func (s *Selector) Poll(timeout time.Duration) (bool, error) {
	s.tick++

	// Deferred re-arm of sockets whose events fired last cycle. Done here
	// rather than right after the previous wait so that deregistrations
	// in between are honored, and gated by the tick so that sockets the
	// engine just re-registered are not armed twice.
	for _, ev := range s.events[:s.nevents] {
		reg, ok := s.sockets[ev.Socket]
		if !ok || reg.tick == s.tick {
			continue
		}
		s.applyDeferred(ev.Socket, reg)
	}
	s.nevents = 0

	// Retry registrations that failed transiently. Unlike the re-arm
	// above, this is not tick-gated: a failed add armed nothing, so there
	// is no double arming to prevent, and waiting a cycle would leave the
	// socket unwatched while the engine believes it is watched.
	for socket, reg := range s.sockets {
		if reg.failed {
			s.applyDeferred(socket, reg)
		}
	}

	n, err := s.source.Wait(s.events, timeout)
	if err != nil {
		return false, err
	}
	s.nevents = n
	return n > 0, nil
}

// Events returns the (socket, readable, writable) tuples observed by the
// most recent Poll. The slice is only valid until the next Poll call.
func (s *Selector) Events() []api.PollEvent {
	return s.events[:s.nevents]
}

// Close releases the underlying primitive.
func (s *Selector) Close() error {
	return s.source.Close()
}

func (s *Selector) applyDeferred(socket api.Socket, reg *registration) {
	reg.tick = s.tick
	if err := s.modifyOrAdd(socket, reg); err != nil {
		reg.failed = true
		s.logger.Debug("socket re-arm failed, will retry on next poll",
			"socket", int(socket), "error", err)
	} else {
		reg.failed = false
	}
}

// addOrModify adds a socket, falling back to a modify. A brand new socket
// may reuse a descriptor the primitive still has registered, notably with
// epoll.
func (s *Selector) addOrModify(socket api.Socket, reg *registration) error {
	if err := s.source.Add(socket, reg.readable, reg.writable); err != nil {
		return s.source.Modify(socket, reg.readable, reg.writable)
	}
	return nil
}

// modifyOrAdd updates a socket, falling back to an add in case the
// primitive already dropped the descriptor.
func (s *Selector) modifyOrAdd(socket api.Socket, reg *registration) error {
	if err := s.source.Modify(socket, reg.readable, reg.writable); err != nil {
		return s.source.Add(socket, reg.readable, reg.writable)
	}
	return nil
}
