// File: affinity/affinity.go
// Package affinity pins OS threads to logical CPUs.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// An agent that owns a busy event loop benefits from staying on one core:
// the engine, the selector and the transfer table are all confined to a
// single goroutine, so migrations only cost cache locality. Callers lock
// the goroutine to its thread first (runtime.LockOSThread), then Pin the
// thread to a CPU.

package affinity

// Pin binds the calling OS thread to the given logical CPU. On platforms
// without affinity support it returns an error and changes nothing.
func Pin(cpu int) error {
	return pin(cpu)
}
