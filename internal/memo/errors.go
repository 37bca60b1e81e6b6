package memo

import (
	"errors"
	"fmt"
)

// ErrPoisoned is stored in a cell whose computation panicked. Goroutines
// waiting on that cell receive it instead of blocking forever.
var ErrPoisoned = errors.New("memo: computation panicked")

// StealFault is the panic value raised when a Steal box is taken, or read,
// after its value has already been stolen.
type StealFault struct {
	Name string
}

func (f *StealFault) Error() string {
	if f.Name == "" {
		return "memo: attempted to read from stolen value"
	}
	return fmt.Sprintf("memo: attempted to read from stolen value of %q", f.Name)
}

// CycleFault is the panic value raised when a cell is requested again from
// inside its own computation.
type CycleFault struct {
	Name string
	// Chain lists the cells being computed on the faulting call path,
	// outermost first.
	Chain []string
}

func (f *CycleFault) Error() string {
	return fmt.Sprintf("memo: cycle detected while computing %q (chain: %v)", f.Name, f.Chain)
}
