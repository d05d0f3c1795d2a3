// File: pool/arena.go
// Package pool implements index-addressed, slot-reusing storage.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Arena backs the agent's transfer table: the engine addresses transfers by
// small reusable integer tokens, so a dense slot array with a free list
// beats a map keyed by opaque values. Not safe for concurrent use; the
// agent confines its arena to one goroutine.

package pool

// Arena stores values in reusable slots addressed by small integers.
// A slot index handed out by Insert stays valid until Remove.
type Arena[T any] struct {
	slots []slot[T]
	free  []int
	count int
}

type slot[T any] struct {
	value T
	used  bool
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns its slot index. Freed slots are reused,
// lowest index first is not guaranteed.
func (a *Arena[T]) Insert(v T) int {
	a.count++
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[i] = slot[T]{value: v, used: true}
		return i
	}
	a.slots = append(a.slots, slot[T]{value: v, used: true})
	return len(a.slots) - 1
}

// Get returns the value stored at i.
func (a *Arena[T]) Get(i int) (T, bool) {
	if i < 0 || i >= len(a.slots) || !a.slots[i].used {
		var zero T
		return zero, false
	}
	return a.slots[i].value, true
}

// Remove frees slot i and returns the value it held.
func (a *Arena[T]) Remove(i int) (T, bool) {
	if i < 0 || i >= len(a.slots) || !a.slots[i].used {
		var zero T
		return zero, false
	}
	v := a.slots[i].value
	a.slots[i] = slot[T]{}
	a.free = append(a.free, i)
	a.count--
	return v, true
}

// Len reports the number of occupied slots.
func (a *Arena[T]) Len() int { return a.count }

// Drain removes every occupied slot, invoking fn for each.
func (a *Arena[T]) Drain(fn func(i int, v T)) {
	for i := range a.slots {
		if !a.slots[i].used {
			continue
		}
		v := a.slots[i].value
		a.slots[i] = slot[T]{}
		a.free = append(a.free, i)
		a.count--
		fn(i, v)
	}
}
