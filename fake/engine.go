// File: fake/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-http/api"
)

// ErrAborted is the engine-level failure reported when a transfer callback
// declines to continue.
var ErrAborted = errors.New("transfer aborted by callback")

// Script tells the fake engine how to play one transfer. It is passed as
// the Spec of the submitted api.Transfer.
type Script struct {
	// Response head. Proto defaults to HTTP/1.1, Status to 200.
	Proto   string
	Status  int
	Reason  string
	Headers [][2]string

	// Response body chunks, delivered through the write callback one at
	// a time.
	Body [][]byte

	// Trailer fields delivered after the last body chunk.
	Trailer [][2]string

	// Fail completes the transfer with this error once the script has
	// played out. With Status zero the transfer fails before any header
	// line is delivered.
	Fail error

	// Socket, when nonzero, makes the transfer socket-driven: the engine
	// asks for the socket to be watched and only makes progress on
	// readiness events for it. Otherwise the engine schedules itself
	// with zero deadlines.
	Socket api.Socket

	// Deadline, when nonzero, is requested from the agent at start and
	// the transfer waits for its expiry before progressing.
	Deadline time.Duration
}

type phase int

const (
	phaseUpload phase = iota
	phaseHeaders
	phaseBody
	phaseTrailer
	phaseFinished
)

type transferState struct {
	token  int
	cb     api.TransferCallbacks
	script *Script

	phase       phase
	chunk       int // index into script.Body
	chunkOffset int

	readPaused  bool
	writePaused bool

	uploaded      int64
	downloaded    int64
	downloadTotal int64

	started time.Time
}

// Engine is a scripted api.Engine for tests. All methods except the
// exported counters must be called from the agent goroutine, like a real
// engine.
type Engine struct {
	socketFn api.SocketFunc
	timerFn  api.TimerFunc

	transfers map[int]*transferState
	completed []completionRecord
	readBuf   []byte
	closed    bool

	// Counters readable from the test goroutine.
	ReadPauses  atomic.Int64
	WritePauses atomic.Int64
	Added       atomic.Int64
	Removed     atomic.Int64
}

type completionRecord struct {
	token  int
	result error
}

// NewEngine creates an idle fake engine.
func NewEngine() *Engine {
	return &Engine{
		transfers: make(map[int]*transferState),
		readBuf:   make([]byte, 16<<10),
	}
}

func (e *Engine) OnSocketUpdate(fn api.SocketFunc) { e.socketFn = fn }
func (e *Engine) OnDeadline(fn api.TimerFunc)      { e.timerFn = fn }

func (e *Engine) Add(token int, t *api.Transfer) error {
	if e.closed {
		return errors.New("engine closed")
	}
	script, ok := t.Spec.(*Script)
	if !ok {
		return fmt.Errorf("fake engine expects *fake.Script spec, got %T", t.Spec)
	}
	if _, exists := e.transfers[token]; exists {
		return fmt.Errorf("token %d already in use", token)
	}

	st := &transferState{
		token:   token,
		cb:      t.Callbacks,
		script:  script,
		started: time.Now(),
	}
	for _, chunk := range script.Body {
		st.downloadTotal += int64(len(chunk))
	}
	e.transfers[token] = st
	e.Added.Add(1)

	switch {
	case script.Socket != 0:
		e.socketFn(api.SocketInterest{Socket: script.Socket, Readable: true, Writable: true})
	case script.Deadline != 0:
		e.timerFn(script.Deadline, true)
	default:
		// Runnable right away; ask to be pumped on the next turn.
		e.timerFn(0, true)
	}
	return nil
}

func (e *Engine) Remove(token int) error {
	if _, ok := e.transfers[token]; !ok {
		return fmt.Errorf("unknown token %d", token)
	}
	delete(e.transfers, token)
	e.Removed.Add(1)
	return nil
}

func (e *Engine) Action(s api.Socket, readable, writable bool) error {
	for _, st := range e.transfers {
		if st.script.Socket == s {
			e.pump(st)
		}
	}
	return nil
}

func (e *Engine) Timeout() error {
	for _, st := range e.transfers {
		if st.script.Socket == 0 {
			e.pump(st)
		}
	}
	return nil
}

func (e *Engine) Completions(fn func(token int, result error)) {
	for _, c := range e.completed {
		fn(c.token, c.result)
	}
	e.completed = e.completed[:0]
}

func (e *Engine) UnpauseRead(token int) error {
	st, ok := e.transfers[token]
	if !ok {
		return fmt.Errorf("unknown token %d", token)
	}
	st.readPaused = false
	// Like a real engine, resuming invokes the callbacks inline.
	e.pump(st)
	return nil
}

func (e *Engine) UnpauseWrite(token int) error {
	st, ok := e.transfers[token]
	if !ok {
		return fmt.Errorf("unknown token %d", token)
	}
	st.writePaused = false
	e.pump(st)
	return nil
}

func (e *Engine) Close() error {
	e.closed = true
	return nil
}

// pump plays the script forward until it finishes, pauses, or needs the
// next readiness event.
func (e *Engine) pump(st *transferState) {
	if st.phase == phaseFinished {
		return
	}

	if st.phase == phaseUpload {
		if st.readPaused {
			return
		}
		for {
			n, status := st.cb.OnRead(e.readBuf)
			switch status {
			case api.ReadPause:
				st.readPaused = true
				e.ReadPauses.Add(1)
				return
			case api.ReadAbort:
				e.finish(st, ErrAborted)
				return
			}
			if n == 0 {
				st.phase = phaseHeaders
				break
			}
			st.uploaded += int64(n)
			e.progress(st)
		}
	}

	if st.phase == phaseHeaders {
		if st.script.Status == 0 && st.script.Fail != nil {
			e.finish(st, st.script.Fail)
			return
		}
		for _, line := range e.headerLines(st.script) {
			if !st.cb.OnHeaderLine(line) {
				e.finish(st, ErrAborted)
				return
			}
		}
		st.phase = phaseBody
	}

	for st.phase == phaseBody {
		if st.writePaused {
			return
		}
		if st.chunk >= len(st.script.Body) {
			st.phase = phaseTrailer
			break
		}
		remaining := st.script.Body[st.chunk][st.chunkOffset:]
		n, status := st.cb.OnWrite(remaining)
		switch status {
		case api.WritePause:
			st.writePaused = true
			e.WritePauses.Add(1)
			return
		case api.WriteAbort:
			e.finish(st, ErrAborted)
			return
		}
		if n == 0 {
			// Consumer declined the data; stop the download.
			e.finish(st, ErrAborted)
			return
		}
		st.chunkOffset += n
		st.downloaded += int64(n)
		if st.chunkOffset >= len(st.script.Body[st.chunk]) {
			st.chunk++
			st.chunkOffset = 0
		}
		e.progress(st)
	}

	if st.phase == phaseTrailer {
		for _, field := range st.script.Trailer {
			line := []byte(field[0] + ": " + field[1] + "\r\n")
			if !st.cb.OnHeaderLine(line) {
				e.finish(st, ErrAborted)
				return
			}
		}
		e.finish(st, st.script.Fail)
	}
}

func (e *Engine) headerLines(s *Script) [][]byte {
	proto := s.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	status := s.Status
	if status == 0 {
		status = 200
	}
	statusLine := fmt.Sprintf("%s %03d", proto, status)
	if s.Reason != "" {
		statusLine += " " + s.Reason
	}

	lines := [][]byte{[]byte(statusLine + "\r\n")}
	for _, field := range s.Headers {
		lines = append(lines, []byte(field[0]+": "+field[1]+"\r\n"))
	}
	return append(lines, []byte("\r\n"))
}

func (e *Engine) progress(st *transferState) {
	elapsed := time.Since(st.started)
	p := api.Progress{
		UploadNow:     st.uploaded,
		DownloadNow:   st.downloaded,
		DownloadTotal: st.downloadTotal,
		Total:         elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.UploadSpeed = float64(st.uploaded) / secs
		p.DownloadSpeed = float64(st.downloaded) / secs
	}
	st.cb.OnProgress(p)
}

func (e *Engine) finish(st *transferState, result error) {
	st.phase = phaseFinished
	if st.script.Socket != 0 {
		e.socketFn(api.SocketInterest{Socket: st.script.Socket, Remove: true})
	}
	e.completed = append(e.completed, completionRecord{token: st.token, result: result})
	// Make sure the agent collects the completion promptly.
	e.timerFn(0, true)
}

var _ api.Engine = (*Engine)(nil)
