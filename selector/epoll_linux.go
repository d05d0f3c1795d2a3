//go:build linux

// File: selector/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux readiness primitive: epoll in oneshot mode plus an eventfd used as
// the cross-goroutine wakeup channel.

package selector

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-http/api"
)

type epollSource struct {
	epfd    int
	eventfd int
	epevs   []unix.EpollEvent
}

func newPlatformSource() (api.PollSource, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	// The eventfd stays level-triggered and persistent; only transfer
	// sockets are armed oneshot.
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &ev); err != nil {
		unix.Close(efd)
		unix.Close(epfd)
		return nil, err
	}

	return &epollSource{
		epfd:    epfd,
		eventfd: efd,
		epevs:   make([]unix.EpollEvent, maxEvents+1),
	}, nil
}

func interestMask(readable, writable bool) uint32 {
	events := uint32(unix.EPOLLONESHOT)
	if readable {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if writable {
		events |= unix.EPOLLOUT
	}
	return events
}

func (s *epollSource) Add(socket api.Socket, readable, writable bool) error {
	ev := unix.EpollEvent{Events: interestMask(readable, writable), Fd: int32(socket)}
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, int(socket), &ev)
}

func (s *epollSource) Modify(socket api.Socket, readable, writable bool) error {
	ev := unix.EpollEvent{Events: interestMask(readable, writable), Fd: int32(socket)}
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, int(socket), &ev)
}

func (s *epollSource) Delete(socket api.Socket) error {
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, int(socket), nil)
}

func (s *epollSource) Wait(events []api.PollEvent, timeout time.Duration) (int, error) {
	if need := len(events) + 1; len(s.epevs) < need {
		s.epevs = make([]unix.EpollEvent, need)
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	n, err := unix.EpollWait(s.epfd, s.epevs, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	out := 0
	for i := 0; i < n && out < len(events); i++ {
		ev := s.epevs[i]
		if int(ev.Fd) == s.eventfd {
			s.drainEventfd()
			continue
		}
		// Errors and hangups are reported as both directions so the
		// engine acts on the socket either way.
		erred := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		events[out] = api.PollEvent{
			Socket:   api.Socket(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 || erred,
			Writable: ev.Events&unix.EPOLLOUT != 0 || erred,
		}
		out++
	}
	return out, nil
}

func (s *epollSource) Notify() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(s.eventfd, buf[:])
	if err == unix.EAGAIN {
		// Counter saturated; a wakeup is already pending.
		return nil
	}
	return err
}

func (s *epollSource) drainEventfd() {
	var buf [8]byte
	for {
		if _, err := unix.Read(s.eventfd, buf[:]); err != nil {
			return
		}
	}
}

func (s *epollSource) Close() error {
	err := unix.Close(s.epfd)
	if cerr := unix.Close(s.eventfd); err == nil {
		err = cerr
	}
	return err
}
