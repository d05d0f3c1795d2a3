// File: agent/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The engine coalesces all per-transfer timeouts into a single "next wake"
// request, so one deadline slot is all the agent needs. Confined to the
// agent goroutine; the engine's deadline callback runs synchronously
// during agent-driven calls.

package agent

import "time"

type timer struct {
	deadline time.Time
	set      bool
}

// Start records a deadline of now+d, overwriting any previous deadline.
func (t *timer) Start(d time.Duration) {
	t.deadline = time.Now().Add(d)
	t.set = true
}

// Stop clears the deadline.
func (t *timer) Stop() {
	t.set = false
	t.deadline = time.Time{}
}

// IsExpired reports whether a deadline is set and has passed as of now.
func (t *timer) IsExpired(now time.Time) bool {
	return t.set && !now.Before(t.deadline)
}

// Remaining returns the time left until the deadline, saturating at zero.
// ok is false when no deadline is set.
func (t *timer) Remaining(now time.Time) (d time.Duration, ok bool) {
	if !t.set {
		return 0, false
	}
	if d = t.deadline.Sub(now); d < 0 {
		d = 0
	}
	return d, true
}
