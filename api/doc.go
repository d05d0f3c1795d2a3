// Package api defines the contracts between the pieces of the request
// execution core: the transfer engine driven by the agent, the readiness
// primitive wrapped by the selector, wakers, and request body sources.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The package contains interfaces and small value types only. Concrete
// implementations live in their own packages (agent, selector, handler,
// body, fake).
package api
