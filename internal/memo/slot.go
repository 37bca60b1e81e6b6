package memo

import (
	"fmt"
	"sync/atomic"
)

// OnceSlot is a fill-once publication slot.
type OnceSlot[T any] struct {
	v atomic.Pointer[T]
}

// Set publishes v and returns the stored pointer. Publishing twice is a
// programming fault and panics.
func (s *OnceSlot[T]) Set(v *T) *T {
	if v == nil {
		panic("memo: OnceSlot.Set called with nil")
	}
	if !s.v.CompareAndSwap(nil, v) {
		panic(fmt.Sprintf("memo: OnceSlot of %T already filled", v))
	}
	return v
}

// Get returns the published value, if any.
func (s *OnceSlot[T]) Get() (*T, bool) {
	v := s.v.Load()
	return v, v != nil
}

// IsSet reports whether the slot has been filled.
func (s *OnceSlot[T]) IsSet() bool {
	return s.v.Load() != nil
}
