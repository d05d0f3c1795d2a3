// File: agent/waker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package agent

import "github.com/momentics/hioload-http/api"

// chainWaker returns a waker that runs f with the inner waker. The per
// transfer body wakers are built this way: f enqueues an unpause message
// and then delegates to the selector waker so the agent notices it.
func chainWaker(inner api.Waker, f func(inner api.Waker)) api.Waker {
	return api.WakerFunc(func() {
		f(inner)
	})
}
