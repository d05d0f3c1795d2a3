// File: agent/agent.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package agent

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-http/affinity"
	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/pool"
	"github.com/momentics/hioload-http/selector"
)

// waitTimeout caps how long one poll may block, whatever deadline the
// engine requested.
const waitTimeout = time.Second

// defaultMessageBuffer is the submission channel depth.
const defaultMessageBuffer = 256

// Options configures a spawned agent.
type Options struct {
	// Engine constructs the transfer engine. Called on the agent
	// goroutine, since engines are not safe to move across goroutines.
	// Required.
	Engine func() (api.Engine, error)

	// Source overrides the platform readiness primitive. Nil selects the
	// platform default (epoll on Linux).
	Source api.PollSource

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// MessageBuffer is the submission channel depth. Submissions block
	// once it fills; unpause wakeups never block.
	MessageBuffer int

	// PinThread locks the agent goroutine to its OS thread and, when
	// PinCPU is non-negative, binds that thread to the given logical
	// CPU. A failure to bind is logged and the agent runs unpinned.
	PinThread bool
	PinCPU    int
}

// Handle is the goroutine-safe façade for one agent. It may be shared and
// used concurrently; Close shuts the agent down and reports how it ended.
type Handle struct {
	tx     chan message
	waker  api.Waker
	done   chan struct{}
	logger *slog.Logger

	// runErr is written by the agent goroutine before done closes.
	runErr error

	closeOnce sync.Once
	closeErr  error
}

// Spawn starts an agent on its own goroutine and blocks until it is
// running (or failed to construct its engine).
func Spawn(opts Options) (*Handle, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("agent: Options.Engine is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sel *selector.Selector
	if opts.Source != nil {
		sel = selector.New(opts.Source, logger)
	} else {
		var err error
		if sel, err = selector.NewDefault(logger); err != nil {
			return nil, err
		}
	}

	depth := opts.MessageBuffer
	if depth <= 0 {
		depth = defaultMessageBuffer
	}

	h := &Handle{
		tx:     make(chan message, depth),
		waker:  sel.Waker(),
		done:   make(chan struct{}),
		logger: logger,
	}

	ready := make(chan error, 1)
	start := time.Now()

	go func() {
		defer close(h.done)

		if opts.PinThread {
			runtime.LockOSThread()
			if opts.PinCPU >= 0 {
				if err := affinity.Pin(opts.PinCPU); err != nil {
					logger.Warn("failed to pin agent thread", "cpu", opts.PinCPU, "error", err)
				}
			}
		}

		engine, err := opts.Engine()
		if err != nil {
			sel.Close()
			h.runErr = err
			ready <- err
			return
		}

		a := newAgent(engine, sel, h.tx, logger)
		ready <- nil
		logger.Debug("agent started", "startup", time.Since(start))

		if err := a.run(); err != nil {
			logger.Error("agent shut down with error", "error", err)
			h.runErr = err
		}
	}()

	if err := <-ready; err != nil {
		<-h.done
		return nil, err
	}
	return h, nil
}

// Submit begins executing a transfer. spec is the engine-ready request
// description; handler observes the transfer and produces the response.
//
// Submit blocks while the message buffer is full and the agent is alive.
// If the agent goroutine has terminated, the captured termination cause is
// returned instead of hanging.
func (h *Handle) Submit(spec any, handler Handler) error {
	return h.send(message{kind: msgExecute, spec: spec, handler: handler})
}

// Close requests shutdown and waits for the agent goroutine to finish.
// Abnormal termination observed during shutdown is logged and returned,
// but transfers already submitted still resolve (with a cancellation
// error) before Close returns.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if err := h.send(message{kind: msgClose}); err != nil {
			h.logger.Error("agent terminated prematurely", "error", err)
			h.closeErr = err
			return
		}
		<-h.done
		h.closeErr = h.runErr
	})
	return h.closeErr
}

func (h *Handle) send(m message) error {
	// The buffered channel would still accept messages after the agent
	// goroutine exits, so a dead agent must be checked first.
	select {
	case <-h.done:
		return h.terminationCause()
	default:
	}
	select {
	case h.tx <- m:
		// Wake the agent so it checks its messages soon.
		h.waker.Wake()
		return nil
	case <-h.done:
		return h.terminationCause()
	}
}

func (h *Handle) terminationCause() error {
	if h.runErr != nil {
		return fmt.Errorf("%w: %v", api.ErrAgentTerminated, h.runErr)
	}
	return api.ErrAgentTerminated
}

// agent is the state owned by the agent goroutine: the engine, the
// selector, the timer and the transfer table are never touched from any
// other goroutine. The resume queue is the one exception, fed by body
// wakers under its own mutex.
type agent struct {
	engine api.Engine
	sel    *selector.Selector
	timer  timer
	waker  api.Waker
	logger *slog.Logger

	tx chan message
	rx chan message

	// Transfer table. Tokens are arena slots: dense, reused only after
	// the engine has released them.
	transfers *pool.Arena[Handler]

	// Socket interest updates produced synchronously by the engine
	// during Action/Timeout/Add; applied after each drive pass.
	socketUpdates *queue.Queue

	// Unpause messages enqueued by body wakers from arbitrary
	// goroutines. A separate unbounded queue, not the submission
	// channel: submissions may legitimately fill the channel, and a
	// dropped or delayed resume would strand a paused transfer.
	resumeMu sync.Mutex
	resumes  []message

	// Completion scratch, reused between loop turns.
	completed []completion

	closeRequested bool
}

type completion struct {
	token  int
	result error
}

func newAgent(engine api.Engine, sel *selector.Selector, ch chan message, logger *slog.Logger) *agent {
	a := &agent{
		engine:        engine,
		sel:           sel,
		waker:         sel.Waker(),
		logger:        logger,
		tx:            ch,
		rx:            ch,
		transfers:     pool.NewArena[Handler](),
		socketUpdates: queue.New(),
	}

	engine.OnSocketUpdate(func(si api.SocketInterest) {
		a.socketUpdates.Add(si)
	})

	engine.OnDeadline(func(d time.Duration, set bool) {
		if set {
			a.timer.Start(d)
		} else {
			a.timer.Stop()
		}
	})

	return a
}

// run drives the agent loop until close is requested. Whatever way the
// loop exits, remaining transfers are resolved so no caller is left
// waiting forever, and the engine and selector are released.
func (a *agent) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked: %v", r)
		}
		a.drainTransfers(err)
		if cerr := a.engine.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if cerr := a.sel.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		a.pollMessages()
		if a.closeRequested {
			break
		}
		if err := a.drive(); err != nil {
			return err
		}
		a.collectCompletions()
	}

	a.logger.Debug("agent shutting down")
	return nil
}

// pollMessages processes pending resumes and queued messages without
// blocking, except that an idle agent (empty transfer table) blocks on the
// next message since nothing else can happen before an Execute arrives.
func (a *agent) pollMessages() {
	for !a.closeRequested {
		for _, m := range a.takeResumes() {
			a.handleMessage(m)
		}
		if a.transfers.Len() == 0 {
			a.handleMessage(<-a.rx)
			continue
		}
		select {
		case m := <-a.rx:
			a.handleMessage(m)
		default:
			return
		}
	}
}

func (a *agent) queueResume(m message) {
	a.resumeMu.Lock()
	a.resumes = append(a.resumes, m)
	a.resumeMu.Unlock()
}

func (a *agent) takeResumes() []message {
	a.resumeMu.Lock()
	defer a.resumeMu.Unlock()
	if len(a.resumes) == 0 {
		return nil
	}
	taken := a.resumes
	a.resumes = nil
	return taken
}

func (a *agent) handleMessage(m message) {
	switch m.kind {
	case msgClose:
		a.closeRequested = true

	case msgExecute:
		a.beginTransfer(m.spec, m.handler)

	case msgUnpauseRead:
		if _, ok := a.transfers.Get(m.token); !ok {
			a.logger.Warn("unpause read for unknown transfer token", "token", m.token)
		} else if err := a.engine.UnpauseRead(m.token); err != nil {
			// The engine likely invoked a callback inline and the
			// callback declined. The transfer stays alive and fails
			// through the normal completion path.
			a.logger.Debug("error unpausing read", "token", m.token, "error", err)
		}

	case msgUnpauseWrite:
		if _, ok := a.transfers.Get(m.token); !ok {
			a.logger.Warn("unpause write for unknown transfer token", "token", m.token)
		} else if err := a.engine.UnpauseWrite(m.token); err != nil {
			a.logger.Debug("error unpausing write", "token", m.token, "error", err)
		}
	}
}

// beginTransfer assigns a token, initializes the handler with its unpause
// wakers and registers the transfer with the engine. A registration
// failure resolves this transfer's future and leaves the agent (and every
// other transfer) running.
//
// The wakers enqueue and then kick the poll loop. Enqueueing never blocks
// and never drops, so they are safe to invoke from any goroutine —
// including the agent's own (a terminal CloseWrite can fire a starved
// pipe's waker inline).
func (a *agent) beginTransfer(spec any, h Handler) {
	token := a.transfers.Insert(h)

	requestWaker := chainWaker(a.waker, func(inner api.Waker) {
		a.queueResume(message{kind: msgUnpauseRead, token: token})
		inner.Wake()
	})

	responseWaker := chainWaker(a.waker, func(inner api.Waker) {
		a.queueResume(message{kind: msgUnpauseWrite, token: token})
		inner.Wake()
	})

	h.Init(token, requestWaker, responseWaker)

	if err := a.engine.Add(token, &api.Transfer{Spec: spec, Callbacks: h.Callbacks()}); err != nil {
		a.logger.Error("failed to register transfer with engine", "token", token, "error", err)
		a.transfers.Remove(token)
		h.OnResult(err)
	}
}

// drive blocks for activity and pumps the engine: socket events and timer
// expiry go in, socket interest updates come back out and are applied to
// the selector.
func (a *agent) drive() error {
	timeout := waitTimeout
	if remaining, ok := a.timer.Remaining(time.Now()); ok && remaining < timeout {
		timeout = remaining
	}

	gotEvents, err := a.sel.Poll(timeout)
	if err != nil {
		return err
	}

	if gotEvents {
		for _, ev := range a.sel.Events() {
			if err := a.engine.Action(ev.Socket, ev.Readable, ev.Writable); err != nil {
				return err
			}
		}
	}

	if a.timer.IsExpired(time.Now()) {
		a.timer.Stop()
		if err := a.engine.Timeout(); err != nil {
			return err
		}
	}

	for a.socketUpdates.Length() > 0 {
		si := a.socketUpdates.Remove().(api.SocketInterest)
		if si.Remove {
			a.sel.Deregister(si.Socket)
		} else {
			a.sel.Register(si.Socket, si.Readable, si.Writable)
		}
	}

	return nil
}

// collectCompletions drains transfers the engine finished since the last
// turn and routes each outcome to its handler.
func (a *agent) collectCompletions() {
	a.completed = a.completed[:0]
	a.engine.Completions(func(token int, result error) {
		a.completed = append(a.completed, completion{token: token, result: result})
	})

	for _, c := range a.completed {
		h, ok := a.transfers.Remove(c.token)
		if !ok {
			a.logger.Warn("completion for unknown transfer token", "token", c.token)
			continue
		}
		if err := a.engine.Remove(c.token); err != nil {
			a.logger.Debug("error removing completed transfer", "token", c.token, "error", err)
		}
		h.OnResult(c.result)
	}
}

// drainTransfers resolves every transfer still in the table. cause nil
// means a clean shutdown; those transfers end with a cancellation error
// rather than hanging their callers.
func (a *agent) drainTransfers(cause error) {
	if cause == nil {
		cause = api.ErrRequestCanceled
	}
	a.transfers.Drain(func(token int, h Handler) {
		if err := a.engine.Remove(token); err != nil {
			a.logger.Debug("error removing transfer during shutdown", "token", token, "error", err)
		}
		h.OnResult(cause)
	})
}
