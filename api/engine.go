// File: api/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contract for the transfer engine: the opaque, non-blocking component that
// performs socket I/O and speaks the HTTP wire protocol. The agent drives an
// Engine from a single goroutine; the engine reports its needs (socket
// interest, next deadline) through callbacks that fire synchronously during
// Add, Action, Timeout and the unpause calls.

package api

import "time"

// ReadStatus is the outcome of a request-body read callback.
type ReadStatus int

const (
	// ReadOK means bytes were produced (possibly zero at end of body).
	ReadOK ReadStatus = iota

	// ReadPause tells the engine to stop asking for body data until
	// UnpauseRead is called for this transfer.
	ReadPause

	// ReadAbort tells the engine to fail the transfer.
	ReadAbort
)

// WriteStatus is the outcome of a response-body write callback.
type WriteStatus int

const (
	// WriteOK means n bytes were consumed. A short write (0 < n < len)
	// asks the engine to re-offer the remainder later; consuming zero
	// bytes tells the engine to stop delivering body data for this
	// transfer.
	WriteOK WriteStatus = iota

	// WritePause tells the engine to hold the data and retry after
	// UnpauseWrite is called for this transfer.
	WritePause

	// WriteAbort tells the engine to fail the transfer.
	WriteAbort
)

// SeekStatus is the outcome of a request-body seek callback.
type SeekStatus int

const (
	SeekOK SeekStatus = iota

	// SeekCantSeek means the body does not support the requested seek.
	SeekCantSeek

	// SeekFail means the seek was attempted and failed.
	SeekFail
)

// Progress carries raw transfer statistics reported by the engine. Timing
// phases are measured from the start of the transfer; zero means the phase
// has not been reached or the engine does not report it.
type Progress struct {
	UploadNow     int64
	UploadTotal   int64
	DownloadNow   int64
	DownloadTotal int64

	UploadSpeed   float64 // bytes/second
	DownloadSpeed float64 // bytes/second

	NameLookup    time.Duration
	Connect       time.Duration
	TLSHandshake  time.Duration
	Pretransfer   time.Duration
	StartTransfer time.Duration
	Total         time.Duration
	Redirect      time.Duration
}

// TransferCallbacks receives per-transfer events from the engine. The
// engine serializes callbacks within one transfer; no two callbacks for the
// same transfer run concurrently.
type TransferCallbacks interface {
	// OnHeaderLine delivers one line of the response header block: the
	// status line, a "Name: value" line, or the terminating blank line.
	// The engine does not distinguish the cases. Returning false aborts
	// the transfer.
	OnHeaderLine(line []byte) bool

	// OnRead asks for up to len(p) bytes of the request body.
	OnRead(p []byte) (int, ReadStatus)

	// OnSeek asks to reposition the request body, typically to replay it
	// after a redirect.
	OnSeek(offset int64, whence int) SeekStatus

	// OnWrite delivers response body bytes.
	OnWrite(p []byte) (int, WriteStatus)

	// OnProgress reports transfer statistics.
	OnProgress(p Progress)
}

// Transfer pairs an engine-specific request description with the callbacks
// that observe its progress. Spec is opaque to the execution core; it is
// built by whatever layer prepared the request for this engine.
type Transfer struct {
	Spec      any
	Callbacks TransferCallbacks
}

// SocketInterest is one socket-watching instruction from the engine.
type SocketInterest struct {
	Socket   Socket
	Readable bool
	Writable bool

	// Remove means the engine is done with this socket and it should no
	// longer be watched.
	Remove bool
}

// SocketFunc receives socket interest updates from the engine.
type SocketFunc func(SocketInterest)

// TimerFunc receives the engine's single coalesced next-deadline request.
// set=false clears any pending deadline.
type TimerFunc func(timeout time.Duration, set bool)

// Engine multiplexes any number of concurrent transfers over non-blocking
// sockets. It is not safe for concurrent use; the agent confines it to one
// goroutine. Action, Timeout, Add, Remove and the unpause calls may invoke
// the registered callbacks synchronously before returning.
type Engine interface {
	// OnSocketUpdate registers the socket-interest hook. Must be called
	// before any transfer is added.
	OnSocketUpdate(fn SocketFunc)

	// OnDeadline registers the coalesced next-deadline hook.
	OnDeadline(fn TimerFunc)

	// Add registers a transfer under the given token and starts it.
	Add(token int, t *Transfer) error

	// Remove unregisters a transfer. Called after the transfer reached a
	// terminal state, or to abandon it during shutdown.
	Remove(token int) error

	// Action injects a readiness event for a socket.
	Action(s Socket, readable, writable bool) error

	// Timeout notifies the engine that the deadline it last requested
	// has expired.
	Timeout() error

	// Completions drains transfers that reached a terminal state since
	// the last call, invoking fn once per transfer with a nil result on
	// success or the engine-level failure.
	Completions(fn func(token int, result error))

	// UnpauseRead resumes request-body reads for a paused transfer.
	UnpauseRead(token int) error

	// UnpauseWrite resumes response-body writes for a paused transfer.
	UnpauseWrite(token int) error

	// Close releases the engine. No transfers may be active.
	Close() error
}
