// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared error values for the request execution core.

package api

import "errors"

var (
	// ErrWouldBlock indicates a non-blocking operation has no data or no
	// room right now. The waker passed alongside the operation will be
	// invoked once the operation can make progress.
	ErrWouldBlock = errors.New("operation would block")

	// ErrConnectionAborted indicates the transfer stopped before the
	// response body was fully delivered, without a clean completion.
	ErrConnectionAborted = errors.New("connection aborted")

	// ErrRequestCanceled indicates the caller abandoned the request
	// before it finished.
	ErrRequestCanceled = errors.New("request canceled")

	// ErrAgentTerminated indicates the agent goroutine exited before
	// processing a close request.
	ErrAgentTerminated = errors.New("agent terminated prematurely")

	// ErrNotSupported indicates the platform lacks a readiness primitive.
	ErrNotSupported = errors.New("readiness polling not supported on this platform")
)
