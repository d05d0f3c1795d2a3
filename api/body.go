// File: api/body.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Body is a non-blocking source of request body bytes, consumed by the
// engine's read callback on the agent goroutine. Implementations must never
// block inside Read.
type Body interface {
	// Read copies up to len(p) bytes into p. At the end of the body it
	// returns (0, io.EOF). When no data is available yet it returns
	// (0, ErrWouldBlock) and guarantees that w is woken once more data
	// arrives or the body is closed.
	Read(p []byte, w Waker) (int, error)

	// Rewind resets the body to its start so it can be replayed, and
	// reports whether it could. Bodies that cannot replay return false.
	Rewind() bool

	// Len reports the total body size in bytes, if known up front.
	Len() (int64, bool)
}
