// File: agent/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package agent

import "github.com/momentics/hioload-http/api"

// Handler is the agent-side lifecycle of one transfer. It is implemented
// by handler.RequestHandler.
type Handler interface {
	// Init is invoked once, on the agent goroutine, when the transfer is
	// registered with the engine. The wakers resume paused body I/O from
	// any goroutine.
	Init(token int, requestWaker, responseWaker api.Waker)

	// Callbacks returns the engine-facing callback set.
	Callbacks() api.TransferCallbacks

	// OnResult delivers the terminal outcome of the transfer.
	OnResult(err error)
}

type msgKind int

const (
	// msgExecute submits a new transfer.
	msgExecute msgKind = iota

	// msgClose requests agent shutdown.
	msgClose

	// msgUnpauseRead resumes request-body reads for a paused transfer.
	msgUnpauseRead

	// msgUnpauseWrite resumes response-body writes for a paused transfer.
	msgUnpauseWrite
)

// message is the unit of communication from a Handle to the agent.
// Messages from the same sender are processed in send order.
type message struct {
	kind    msgKind
	token   int
	spec    any
	handler Handler
}
