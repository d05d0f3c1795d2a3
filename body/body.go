// File: body/body.go
// Package body provides request body sources for the execution core.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// All sources satisfy api.Body: a non-blocking read interface consumed by
// the engine's read callback on the agent goroutine. Fixed sources (Empty,
// Bytes) are replayable and support rewinding after a redirect; Streaming
// bodies are fed by the caller through an io.WriteCloser and cannot replay.

package body

import (
	"io"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/internal/pipe"
)

// Empty returns a zero-length replayable body.
func Empty() api.Body {
	return &bytesBody{}
}

// Bytes returns a replayable body backed by b. The slice is not copied.
func Bytes(b []byte) api.Body {
	return &bytesBody{data: b}
}

type bytesBody struct {
	data []byte
	off  int
}

func (b *bytesBody) Read(p []byte, _ api.Waker) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func (b *bytesBody) Rewind() bool {
	b.off = 0
	return true
}

func (b *bytesBody) Len() (int64, bool) {
	return int64(len(b.data)), true
}

// Streaming returns a body fed incrementally through the returned Writer.
// The engine is paused whenever it outpaces the writer and resumed when
// more data arrives. size < 0 means the total length is unknown.
func Streaming(size int64, capacity int) (api.Body, *Writer) {
	p := pipe.New(capacity)
	return &streamBody{p: p, size: size}, &Writer{p: p}
}

type streamBody struct {
	p    *pipe.Pipe
	size int64
}

func (s *streamBody) Read(p []byte, w api.Waker) (int, error) {
	s.p.SetWaker(w)
	return s.p.ReadNonblock(p)
}

func (s *streamBody) Rewind() bool { return false }

func (s *streamBody) Len() (int64, bool) {
	if s.size < 0 {
		return 0, false
	}
	return s.size, true
}

// Abort closes the consuming end. Pending and future writes fail with
// io.ErrClosedPipe. Invoked by the handler when the transfer ends before
// the body was fully read.
func (s *streamBody) Abort() {
	s.p.CloseRead()
}

// Writer is the feeding end of a streaming body.
type Writer struct {
	p *pipe.Pipe
}

// Write blocks until all of b is buffered or the transfer goes away.
func (w *Writer) Write(b []byte) (int, error) {
	return w.p.WriteWait(b)
}

// Close marks the end of the body.
func (w *Writer) Close() error {
	w.p.CloseWrite(nil)
	return nil
}

// CloseWithError marks the body as failed; the engine's next read observes
// err and aborts the transfer.
func (w *Writer) CloseWithError(err error) error {
	w.p.CloseWrite(err)
	return nil
}

var _ io.WriteCloser = (*Writer)(nil)
