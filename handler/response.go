// File: handler/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Caller-side surface of one transfer: the future that resolves with the
// response head, and the body stream behind it.

package handler

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/internal/pipe"
	"github.com/momentics/hioload-http/metrics"
)

// shared is the state jointly owned by the agent-side handler and the
// caller-side future and body. Everything here is either atomic or
// synchronized by the body pipe.
type shared struct {
	// Transfer token, set once by Init. -1 while unassigned.
	token atomic.Int64

	// Terminal transfer result. err is written once under once and
	// published by done; read it only after done reports true.
	once sync.Once
	err  error
	done atomic.Bool

	// Caller gave up on the response before it resolved.
	futureCanceled atomic.Bool

	// Caller closed the body reader before EOF.
	bodyDropped atomic.Bool

	// Response body pipe: agent writes non-blocking, caller reads.
	pipe *pipe.Pipe

	// Trailer fields received after the header block. Written on the
	// agent goroutine before the pipe closes; safe to read after the
	// body reports EOF.
	trailer http.Header
}

func (s *shared) setResult(err error) (first bool) {
	s.once.Do(func() {
		s.err = err
		s.done.Store(true)
		first = true
	})
	return first
}

func (s *shared) result() (error, bool) {
	if s.done.Load() {
		return s.err, true
	}
	return nil, false
}

type result struct {
	resp *Response
	err  error
}

// Response is the status line, header block and body of one transfer.
type Response struct {
	StatusCode int
	Proto      string
	Header     http.Header

	// Body streams the response payload. It must be read to EOF or
	// closed; closing it early aborts the transfer.
	Body *BodyReader

	// Metrics is updated live while the transfer progresses.
	Metrics *metrics.Metrics

	shared *shared
}

// Trailer returns header fields that arrived after the response body. Only
// valid once Body has returned io.EOF.
func (r *Response) Trailer() http.Header {
	return r.shared.trailer
}

// ResponseFuture resolves once with the response head or an error.
type ResponseFuture struct {
	ch     chan result
	shared *shared

	received bool
	resp     *Response
	err      error
}

// Wait blocks until the response head arrives or ctx is done. Context
// cancellation cancels the request itself, consistent with abandoning the
// future. Wait is not safe for concurrent use; it resolves exactly once
// and repeated calls return the same outcome.
func (f *ResponseFuture) Wait(ctx context.Context) (*Response, error) {
	if f.received {
		return f.resp, f.err
	}
	select {
	case r := <-f.ch:
		f.received = true
		f.resp, f.err = r.resp, r.err
		return f.resp, f.err
	case <-ctx.Done():
		f.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel abandons the request. The transfer is aborted cooperatively: the
// next engine callback for it observes the cancellation and stops the
// transfer.
func (f *ResponseFuture) Cancel() {
	f.shared.futureCanceled.Store(true)
	// Closing the read end unblocks a paused transfer so it can observe
	// the cancellation instead of staying paused forever.
	f.shared.pipe.CloseRead()
}

// BodyReader streams the response body. Reading past the point where the
// transfer actually stopped, without a clean completion, yields
// api.ErrConnectionAborted instead of a silent truncation.
type BodyReader struct {
	shared *shared
}

// Read blocks until body bytes are available, EOF, or a transfer error.
func (b *BodyReader) Read(p []byte) (int, error) {
	n, err := b.shared.pipe.ReadWait(p)
	if err == io.EOF || err == io.ErrClosedPipe {
		resErr, done := b.shared.result()
		switch {
		case !done:
			// The pipe ended but the transfer never completed cleanly.
			return 0, api.ErrConnectionAborted
		case resErr != nil:
			return 0, resErr
		}
	}
	return n, err
}

// Close releases the body. Closing before EOF marks the consumer as gone;
// remaining transfer data is discarded and the engine told to stop.
func (b *BodyReader) Close() error {
	b.shared.bodyDropped.Store(true)
	b.shared.pipe.CloseRead()
	return nil
}

var _ io.ReadCloser = (*BodyReader)(nil)
