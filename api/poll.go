// File: api/poll.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-notification primitive consumed by the selector. On Linux this
// is implemented over epoll; the selector layers bookkeeping and oneshot
// re-registration on top of this interface.

package api

import "time"

// Socket is an OS socket descriptor as addressed by the transfer engine.
type Socket int

// PollEvent reports observed readiness for one socket.
type PollEvent struct {
	Socket   Socket
	Readable bool
	Writable bool
}

// PollSource is a minimal readiness poller. Registrations may be delivered
// oneshot: after an event fires for a socket, the socket must be re-armed
// with Modify before further events are reported for it.
//
// Only Notify may be called from outside the owning goroutine.
type PollSource interface {
	// Add begins watching a socket for the given interest.
	Add(s Socket, readable, writable bool) error

	// Modify updates (and re-arms) the interest for a watched socket.
	Modify(s Socket, readable, writable bool) error

	// Delete stops watching a socket.
	Delete(s Socket) error

	// Wait blocks until at least one event is available, the timeout
	// elapses, or Notify is called. A negative timeout blocks without
	// limit. It returns the number of events written into events.
	Wait(events []PollEvent, timeout time.Duration) (int, error)

	// Notify wakes a concurrent Wait call. Safe from any goroutine.
	Notify() error

	// Close releases the poller.
	Close() error
}
