// File: handler/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/internal/pipe"
	"github.com/momentics/hioload-http/metrics"
)

// responseBufferSize bounds how far the engine can run ahead of a slow
// body consumer before being paused.
const responseBufferSize = 64 << 10

// RequestHandler adapts one transfer between the engine's callback
// contract and the caller's future/stream pair. It starts uninitialized,
// becomes active when an agent calls Init, and is completed by OnResult.
//
// All methods except New run on the agent goroutine.
type RequestHandler struct {
	logger *slog.Logger
	shared *shared

	// sender resolves the response future; nil once resolved.
	sender chan<- result

	requestBody api.Body

	// Wakers supplied by the agent. Invoking them routes an unpause
	// message for this transfer and kicks the agent's poll loop.
	requestWaker  api.Waker
	responseWaker api.Waker

	status  int
	proto   string
	headers http.Header

	metrics *metrics.Metrics
}

// New creates a handler for a transfer carrying the given request body,
// along with the future its response will resolve through.
func New(requestBody api.Body, logger *slog.Logger) (*RequestHandler, *ResponseFuture) {
	if logger == nil {
		logger = slog.Default()
	}
	if requestBody == nil {
		requestBody = emptyBody{}
	}

	ch := make(chan result, 1)
	sh := &shared{pipe: pipe.New(responseBufferSize)}
	sh.token.Store(-1)

	h := &RequestHandler{
		logger:      logger,
		shared:      sh,
		sender:      ch,
		requestBody: requestBody,
		headers:     make(http.Header),
		metrics:     metrics.New(),
	}

	return h, &ResponseFuture{ch: ch, shared: sh}
}

// Callbacks returns the handler as the engine-facing callback set.
func (h *RequestHandler) Callbacks() api.TransferCallbacks { return h }

// Token returns the transfer token assigned by the agent, or -1 before
// Init.
func (h *RequestHandler) Token() int {
	return int(h.shared.token.Load())
}

// Init is called exactly once by the agent when the transfer is registered
// with the engine. The wakers resume paused body I/O: the request waker
// re-enqueues an unpause-read message, the response waker an
// unpause-write.
func (h *RequestHandler) Init(token int, requestWaker, responseWaker api.Waker) {
	h.shared.token.Store(int64(token))
	h.requestWaker = requestWaker
	h.responseWaker = responseWaker
	h.shared.pipe.SetWaker(responseWaker)
}

// OnResult delivers the terminal outcome reported by the engine. On
// success any pending headers are finalized (a transfer without a body,
// HEAD-like, resolves here). On failure the future resolves with the
// error.
func (h *RequestHandler) OnResult(err error) {
	h.setResult(err)
}

func (h *RequestHandler) setResult(err error) {
	if !h.shared.setResult(err) {
		h.logger.Debug("transfer result already set", "token", h.Token())
		return
	}

	h.resolveFuture()
	h.shared.pipe.CloseWrite(err)

	// Unblock a caller still feeding a streaming request body.
	if a, ok := h.requestBody.(interface{ Abort() }); ok {
		a.Abort()
	}
}

// resolveFuture completes the response future, once. With a terminal error
// recorded, that error wins; otherwise the headers received so far become
// the response head.
func (h *RequestHandler) resolveFuture() {
	if h.sender == nil {
		return
	}
	sender := h.sender
	h.sender = nil

	if err, done := h.shared.result(); done && err != nil {
		h.logger.Warn("transfer completed with error", "token", h.Token(), "error", err)
		sender <- result{err: err}
		return
	}

	sender <- result{resp: &Response{
		StatusCode: h.status,
		Proto:      h.proto,
		Header:     h.headers,
		Body:       &BodyReader{shared: h.shared},
		Metrics:    h.metrics,
		shared:     h.shared,
	}}
}

func (h *RequestHandler) resolved() bool { return h.sender == nil }

func (h *RequestHandler) canceled() bool { return h.shared.futureCanceled.Load() }

// OnHeaderLine classifies one line of the response header block. The
// future is not resolved on the terminating blank line, because a redirect
// may still replace this response; it resolves on the first body byte or
// on completion, whichever comes first.
func (h *RequestHandler) OnHeaderLine(line []byte) bool {
	if h.canceled() {
		return false
	}

	// Once the future has resolved, further fields belong to the trailer.
	// Nothing else may run past this point: the header block already
	// belongs to the caller, who can be reading it concurrently.
	if h.resolved() {
		if name, value, ok := parseHeaderLine(line); ok {
			if h.shared.trailer == nil {
				h.shared.trailer = make(http.Header)
			}
			h.shared.trailer.Add(name, value)
		}
		return true
	}

	if proto, status, ok := parseStatusLine(line); ok {
		h.proto = proto
		h.status = status
		// Discard fields buffered from an intermediate response
		// (redirect hop, 100-continue).
		clear(h.headers)
		return true
	}

	if name, value, ok := parseHeaderLine(line); ok {
		h.headers.Add(name, value)
		return true
	}

	if isBlankLine(line) {
		return true
	}

	return false
}

// OnRead produces request body bytes for the engine without blocking.
func (h *RequestHandler) OnRead(p []byte) (int, api.ReadStatus) {
	if h.canceled() {
		return 0, api.ReadAbort
	}
	if h.requestWaker == nil {
		h.logger.Error("transfer has not been initialized")
		return 0, api.ReadAbort
	}

	n, err := h.requestBody.Read(p, h.requestWaker)
	switch {
	case err == nil:
		return n, api.ReadOK
	case errors.Is(err, io.EOF):
		return 0, api.ReadOK
	case errors.Is(err, api.ErrWouldBlock):
		return 0, api.ReadPause
	default:
		h.logger.Error("error reading request body", "token", h.Token(), "error", err)
		// Record the error now, while we still know its cause; the
		// engine's own failure report would be far more generic.
		h.setResult(err)
		return 0, api.ReadAbort
	}
}

// OnSeek repositions the request body. Only a rewind to the very start is
// supported, used to replay a body after a redirect.
func (h *RequestHandler) OnSeek(offset int64, whence int) api.SeekStatus {
	if offset == 0 && whence == io.SeekStart && h.requestBody.Rewind() {
		return api.SeekOK
	}
	h.logger.Warn("unsupported seek requested for request body",
		"token", h.Token(), "offset", offset, "whence", whence)
	return api.SeekCantSeek
}

// OnWrite consumes response body bytes from the engine without blocking.
func (h *RequestHandler) OnWrite(p []byte) (int, api.WriteStatus) {
	if h.canceled() && !h.resolved() {
		return 0, api.WriteAbort
	}

	// A body byte means no more redirects can happen; the buffered
	// headers are final.
	h.resolveFuture()

	n, err := h.shared.pipe.WriteNonblock(p)
	switch {
	case err == nil:
		return n, api.WriteOK
	case errors.Is(err, api.ErrWouldBlock):
		return 0, api.WritePause
	case errors.Is(err, io.ErrClosedPipe):
		// The consumer is gone. Discard the data and report zero
		// consumed, which tells the engine to stop delivering.
		if !h.shared.bodyDropped.Load() {
			h.logger.Debug("response dropped without consuming the body", "token", h.Token())
		}
		return 0, api.WriteOK
	default:
		h.logger.Error("error buffering response body", "token", h.Token(), "error", err)
		return 0, api.WriteOK
	}
}

// OnProgress publishes transfer statistics from the engine.
func (h *RequestHandler) OnProgress(p api.Progress) {
	h.metrics.Update(p)
}

var _ api.TransferCallbacks = (*RequestHandler)(nil)

// emptyBody is the zero-length fallback used when a transfer has no
// request body.
type emptyBody struct{}

func (emptyBody) Read([]byte, api.Waker) (int, error) { return 0, io.EOF }
func (emptyBody) Rewind() bool                        { return true }
func (emptyBody) Len() (int64, bool)                  { return 0, true }
