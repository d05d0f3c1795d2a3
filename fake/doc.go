// Package fake provides test doubles for the api contracts: a scripted
// transfer engine and an in-memory readiness primitive.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The fake engine interprets the Spec of each submitted transfer as a
// *Script and replays it through the transfer callbacks, honoring
// pause/resume, abort codes and socket interest exactly like a real
// engine: work is scheduled by requesting a zero deadline and performed
// inside Timeout, Action and the unpause calls.
package fake
