// Package handler bridges the transfer engine's synchronous callback
// contract to an asynchronous consumer.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A RequestHandler adapts exactly one transfer: engine callbacks (header
// line, request body read, response body write, seek, progress) arrive on
// the agent goroutine and either make progress immediately or answer with
// a pause code; the caller waits on a ResponseFuture and then streams the
// body through a BodyReader from any goroutine.
package handler
