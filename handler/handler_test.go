// File: handler/handler_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/body"
)

type countingWaker struct{ n atomic.Int32 }

func (w *countingWaker) Wake() { w.n.Add(1) }

func newTestHandler(t *testing.T, reqBody api.Body) (*RequestHandler, *ResponseFuture, *countingWaker, *countingWaker) {
	t.Helper()
	h, future := New(reqBody, nil)
	rw, ww := &countingWaker{}, &countingWaker{}
	h.Init(1, rw, ww)
	return h, future, rw, ww
}

func feedHeaders(t *testing.T, h *RequestHandler, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if !h.OnHeaderLine([]byte(line)) {
			t.Fatalf("OnHeaderLine(%q) rejected", line)
		}
	}
}

func futurePending(f *ResponseFuture) bool {
	select {
	case r := <-f.ch:
		// Put it back for the actual Wait.
		f.ch <- r
		return false
	default:
		return true
	}
}

func TestHandler_DoesNotResolveOnBlankHeaderLine(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h,
		"HTTP/1.1 200 OK\r\n",
		"Content-Type: text/plain\r\n",
		"\r\n")

	// A redirect could still replace this response; the head is withheld
	// until the first body byte or completion.
	if !futurePending(future) {
		t.Fatal("future resolved on blank header line")
	}
}

func TestHandler_ResolvesOnFirstBodyByte(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h,
		"HTTP/1.1 200 OK\r\n",
		"Content-Type: text/plain\r\n",
		"\r\n")
	if n, st := h.OnWrite([]byte("hi")); st != api.WriteOK || n != 2 {
		t.Fatalf("OnWrite = %d, %v", n, st)
	}

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if resp.StatusCode != 200 || resp.Proto != "HTTP/1.1" {
		t.Fatalf("head = %d %s", resp.StatusCode, resp.Proto)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestHandler_ResolvesOnCompletionWithoutBody(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h,
		"HTTP/1.1 204 No Content\r\n",
		"\r\n")
	h.OnResult(nil)

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := resp.Body.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("empty body read = %v, want io.EOF", err)
	}
}

func TestHandler_RedirectDiscardsIntermediateHeaders(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h,
		"HTTP/1.1 301 Moved Permanently\r\n",
		"Location: /elsewhere\r\n",
		"\r\n",
		"HTTP/1.1 200 OK\r\n",
		"Content-Type: text/plain\r\n",
		"\r\n")
	h.OnWrite([]byte("final"))

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want the post-redirect 200", resp.StatusCode)
	}
	if resp.Header.Get("Location") != "" {
		t.Fatal("header block still carries fields from the redirect hop")
	}
}

func TestHandler_ErrorResultWins(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)
	want := errors.New("name resolution failed")

	feedHeaders(t, h, "HTTP/1.1 200 OK\r\n")
	h.OnResult(want)

	if _, err := future.Wait(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Wait = %v, want %v", err, want)
	}
}

func TestHandler_BodyStreamAndEOF(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h, "HTTP/1.1 200 OK\r\n", "\r\n")
	h.OnWrite([]byte("hello, "))
	h.OnWrite([]byte("world"))
	h.OnResult(nil)

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello, world" {
		t.Fatalf("body = %q", data)
	}
}

func TestHandler_TrailerFields(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h, "HTTP/1.1 200 OK\r\n", "\r\n")
	h.OnWrite([]byte("payload"))

	// Fields arriving after the future resolved belong to the trailer.
	feedHeaders(t, h, "X-Checksum: abc123\r\n")
	h.OnResult(nil)

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if _, err := io.ReadAll(resp.Body); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got := resp.Trailer().Get("X-Checksum"); got != "abc123" {
		t.Fatalf("trailer X-Checksum = %q", got)
	}
}

func TestHandler_LateStatusLineDoesNotTouchHeaders(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h,
		"HTTP/1.1 200 OK\r\n",
		"Content-Type: text/plain\r\n",
		"\r\n")
	h.OnWrite([]byte("payload"))

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// A status-shaped line in the trailer block must not reset the header
	// block the caller already holds.
	feedHeaders(t, h, "HTTP/1.1 500 Bogus\r\n", "X-After: yes\r\n", "\r\n")

	if resp.StatusCode != 200 {
		t.Fatalf("status mutated after resolution: %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "text/plain" {
		t.Fatal("header block mutated after resolution")
	}
	if resp.Trailer().Get("X-After") != "yes" {
		t.Fatalf("trailer field lost: %q", resp.Trailer().Get("X-After"))
	}
}

func TestHandler_RequestBodyRead(t *testing.T) {
	h, _, _, _ := newTestHandler(t, body.Bytes([]byte("abc")))

	buf := make([]byte, 8)
	n, st := h.OnRead(buf)
	if st != api.ReadOK || n != 3 || string(buf[:3]) != "abc" {
		t.Fatalf("OnRead = %d, %v, %q", n, st, buf[:n])
	}
	// End of body reports zero bytes with OK.
	if n, st := h.OnRead(buf); st != api.ReadOK || n != 0 {
		t.Fatalf("OnRead at EOF = %d, %v", n, st)
	}
}

func TestHandler_RequestBodyPauseAndWake(t *testing.T) {
	src, w := body.Streaming(-1, 64)
	h, _, reqWaker, _ := newTestHandler(t, src)

	buf := make([]byte, 8)
	if _, st := h.OnRead(buf); st != api.ReadPause {
		t.Fatalf("OnRead on empty streaming body = %v, want ReadPause", st)
	}

	// Feeding the body must wake the paused transfer.
	if _, err := w.Write([]byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if reqWaker.n.Load() != 1 {
		t.Fatalf("request waker fired %d times, want 1", reqWaker.n.Load())
	}
	if n, st := h.OnRead(buf); st != api.ReadOK || n != 4 {
		t.Fatalf("OnRead after wake = %d, %v", n, st)
	}
}

func TestHandler_RequestBodyErrorRecorded(t *testing.T) {
	src, w := body.Streaming(-1, 64)
	h, future, _, _ := newTestHandler(t, src)
	want := errors.New("upload source failed")

	w.CloseWithError(want)
	if _, st := h.OnRead(make([]byte, 8)); st != api.ReadAbort {
		t.Fatalf("OnRead = %v, want ReadAbort", st)
	}

	// The handler records the specific cause rather than waiting for the
	// engine's generic abort report.
	h.OnResult(errors.New("generic abort"))
	if _, err := future.Wait(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Wait = %v, want %v", err, want)
	}
}

func TestHandler_SeekRewindOnly(t *testing.T) {
	h, _, _, _ := newTestHandler(t, body.Bytes([]byte("abc")))

	h.OnRead(make([]byte, 8))
	if st := h.OnSeek(0, io.SeekStart); st != api.SeekOK {
		t.Fatalf("rewind = %v, want SeekOK", st)
	}
	if n, st := h.OnRead(make([]byte, 8)); st != api.ReadOK || n != 3 {
		t.Fatalf("read after rewind = %d, %v", n, st)
	}
	if st := h.OnSeek(1, io.SeekStart); st != api.SeekCantSeek {
		t.Fatalf("mid-body seek = %v, want SeekCantSeek", st)
	}

	src, _ := body.Streaming(-1, 64)
	h2, _, _, _ := newTestHandler(t, src)
	if st := h2.OnSeek(0, io.SeekStart); st != api.SeekCantSeek {
		t.Fatalf("streaming rewind = %v, want SeekCantSeek", st)
	}
}

func TestHandler_WritePauseAndWakeOnDrain(t *testing.T) {
	h, future, _, respWaker := newTestHandler(t, nil)

	feedHeaders(t, h, "HTTP/1.1 200 OK\r\n", "\r\n")

	// Fill the response buffer to capacity.
	chunk := make([]byte, 16<<10)
	written := 0
	for written < responseBufferSize {
		n, st := h.OnWrite(chunk)
		if st != api.WriteOK {
			t.Fatalf("OnWrite = %v at %d bytes", st, written)
		}
		written += n
	}
	if _, st := h.OnWrite(chunk); st != api.WritePause {
		t.Fatalf("OnWrite on full buffer = %v, want WritePause", st)
	}

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if _, err := resp.Body.Read(make([]byte, 4096)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if respWaker.n.Load() != 1 {
		t.Fatalf("response waker fired %d times after drain, want 1", respWaker.n.Load())
	}
}

func TestHandler_CancelAbortsCallbacks(t *testing.T) {
	h, future, _, _ := newTestHandler(t, body.Bytes([]byte("abc")))

	future.Cancel()

	if h.OnHeaderLine([]byte("HTTP/1.1 200 OK\r\n")) {
		t.Fatal("canceled transfer accepted a header line")
	}
	if _, st := h.OnRead(make([]byte, 8)); st != api.ReadAbort {
		t.Fatalf("OnRead after cancel = %v, want ReadAbort", st)
	}
	if _, st := h.OnWrite([]byte("x")); st != api.WriteAbort {
		t.Fatalf("OnWrite after cancel = %v, want WriteAbort", st)
	}
}

func TestHandler_WaitContextCancelsRequest(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := future.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
	if !h.canceled() {
		t.Fatal("abandoning the future did not cancel the transfer")
	}
}

func TestHandler_BodyDroppedDiscardsWrites(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h, "HTTP/1.1 200 OK\r\n", "\r\n")
	h.OnWrite([]byte("start"))

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	resp.Body.Close()

	// Late writes are swallowed so the engine can finish the transfer.
	if n, st := h.OnWrite([]byte("more")); st != api.WriteOK || n != 0 {
		t.Fatalf("OnWrite after body close = %d, %v", n, st)
	}
}

func TestHandler_ReadAfterDropIsConnectionAborted(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)

	feedHeaders(t, h, "HTTP/1.1 200 OK\r\n", "\r\n")
	h.OnWrite([]byte("partial"))

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	resp.Body.Close()

	if _, err := resp.Body.Read(make([]byte, 8)); !errors.Is(err, api.ErrConnectionAborted) {
		t.Fatalf("Read after Close = %v, want ErrConnectionAborted", err)
	}
}

func TestHandler_AbortedTransferSurfacesOnBodyRead(t *testing.T) {
	h, future, _, _ := newTestHandler(t, nil)
	want := errors.New("peer reset")

	feedHeaders(t, h, "HTTP/1.1 200 OK\r\n", "\r\n")
	h.OnWrite([]byte("partial"))

	resp, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	h.OnResult(want)

	data := make([]byte, 16)
	n, err := resp.Body.Read(data)
	if err != nil || string(data[:n]) != "partial" {
		t.Fatalf("buffered body lost: %q, %v", data[:n], err)
	}
	if _, err := resp.Body.Read(data); !errors.Is(err, want) {
		t.Fatalf("terminal read = %v, want %v", err, want)
	}
}
