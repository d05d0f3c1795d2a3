// File: api/waker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Waker schedules a suspended consumer or the agent loop to make progress
// again. Implementations must be safe to invoke from any goroutine, any
// number of times.
type Waker interface {
	Wake()
}

// WakerFunc adapts a plain function to the Waker interface.
type WakerFunc func()

// Wake calls f.
func (f WakerFunc) Wake() { f() }

// NopWaker is a Waker that does nothing. Useful as a placeholder before a
// handler has been initialized by an agent.
var NopWaker Waker = WakerFunc(func() {})
