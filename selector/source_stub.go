//go:build !linux

// File: selector/source_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub for platforms without a readiness primitive implementation. The
// selector itself still works over any api.PollSource supplied to New.

package selector

import "github.com/momentics/hioload-http/api"

func newPlatformSource() (api.PollSource, error) {
	return nil, api.ErrNotSupported
}
