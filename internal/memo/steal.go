package memo

import "sync"

// Steal holds a value that may be taken out exactly once.
type Steal[T any] struct {
	mu     sync.Mutex
	name   string
	value  T
	stolen bool
}

// NewSteal wraps value in a fresh, untaken box.
func NewSteal[T any](value T) *Steal[T] {
	return &Steal[T]{value: value}
}

func newNamedSteal[T any](name string, value T) *Steal[T] {
	return &Steal[T]{name: name, value: value}
}

// Steal removes and returns the contained value. Any later Steal or Borrow
// panics with *StealFault.
func (s *Steal[T]) Steal() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stolen {
		panic(&StealFault{Name: s.name})
	}
	v := s.value
	var zero T
	s.value = zero
	s.stolen = true
	return v
}

// Borrow returns the contained value without taking it.
func (s *Steal[T]) Borrow() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stolen {
		panic(&StealFault{Name: s.name})
	}
	return s.value
}

// IsStolen reports whether the value has been taken.
func (s *Steal[T]) IsStolen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stolen
}
