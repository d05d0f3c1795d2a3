// Package selector waits for socket readiness on behalf of the agent.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The transfer engine hands out oneshot, per-socket interest requests; the
// OS primitive (api.PollSource) may also deliver its events oneshot. The
// selector owns the bookkeeping between the two: it records the desired
// interest per socket, re-arms sockets whose events fired, and retries
// registrations that failed transiently due to descriptor reuse.
//
// A Selector is confined to the agent goroutine. The only cross-goroutine
// entry point is the Waker it hands out.
package selector
