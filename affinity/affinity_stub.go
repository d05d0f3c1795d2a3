//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

import "github.com/momentics/hioload-http/api"

func pin(int) error {
	return api.ErrNotSupported
}
