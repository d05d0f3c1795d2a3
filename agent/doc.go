// Package agent executes transfers on a single background goroutine.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The agent owns the transfer engine, a selector and a timer, none of
// which are safe to drive concurrently, and multiplexes any number of
// in-flight transfers over them. Callers hold a Handle and talk to the
// agent exclusively through message passing; body backpressure flows back
// through wakers that re-enqueue unpause messages and kick the agent's
// poll loop.
package agent
