package memo

import (
	"context"
	"sync"
)

type cellState int

const (
	stateEmpty cellState = iota
	stateInProgress
	stateDone
)

// Cell is a single-slot cache: Compute runs its function at most once and
// every later call observes the same box or the same error.
//
// The zero value is an empty, unnamed cell ready for use.
type Cell[T any] struct {
	// Name labels the cell in faults and logs.
	Name string

	mu    sync.Mutex
	state cellState
	done  chan struct{}
	box   *Steal[T]
	err   error
}

// NewCell returns an empty cell labelled name.
func NewCell[T any](name string) *Cell[T] {
	return &Cell[T]{Name: name}
}

// activeFrame is one link of the chain of cells being computed on a call
// path. It travels in the context passed to computations.
type activeFrame struct {
	cell   any
	name   string
	parent *activeFrame
}

type activeKey struct{}

func activeChain(ctx context.Context) *activeFrame {
	f, _ := ctx.Value(activeKey{}).(*activeFrame)
	return f
}

func (f *activeFrame) contains(cell any) bool {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.cell == cell {
			return true
		}
	}
	return false
}

func (f *activeFrame) names() []string {
	var out []string
	for cur := f; cur != nil; cur = cur.parent {
		out = append([]string{cur.name}, out...)
	}
	return out
}

// Compute returns the cached result of the cell, running f first if the
// cell is empty. f receives a context that records this cell as in
// progress; computations must pass it to any nested Compute.
//
// A nested request for a cell that is in progress on the same call path
// panics with *CycleFault. A request from an unrelated goroutine blocks
// until the running computation finishes or ctx is done.
func (c *Cell[T]) Compute(ctx context.Context, f func(ctx context.Context) (T, error)) (*Steal[T], error) {
	c.mu.Lock()
	switch c.state {
	case stateDone:
		box, err := c.box, c.err
		c.mu.Unlock()
		return box, err
	case stateInProgress:
		chain := activeChain(ctx)
		if chain.contains(c) {
			c.mu.Unlock()
			panic(&CycleFault{Name: c.Name, Chain: append(chain.names(), c.Name)})
		}
		done := c.done
		c.mu.Unlock()
		select {
		case <-done:
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.box, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.state = stateInProgress
	c.done = make(chan struct{})
	c.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			c.finish(nil, ErrPoisoned)
		}
	}()

	inner := context.WithValue(ctx, activeKey{}, &activeFrame{cell: c, name: c.Name, parent: activeChain(ctx)})
	v, err := f(inner)
	finished = true

	if err != nil {
		c.finish(nil, err)
		return nil, err
	}
	box := newNamedSteal(c.Name, v)
	c.finish(box, nil)
	return box, nil
}

func (c *Cell[T]) finish(box *Steal[T], err error) {
	c.mu.Lock()
	c.box, c.err = box, err
	c.state = stateDone
	close(c.done)
	c.mu.Unlock()
}

// Peek returns the stored result without computing. ok is false while the
// cell is empty or in progress.
func (c *Cell[T]) Peek() (box *Steal[T], ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateDone {
		return nil, false, nil
	}
	return c.box, true, c.err
}
