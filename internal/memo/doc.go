// Package memo provides the single-slot caching primitives the compilation
// driver is built on.
//
// # Cells and boxes
//
// A Cell computes its value at most once and caches either the value or the
// failure. Successful values are wrapped in a Steal box so that exactly one
// downstream consumer can take ownership of them:
//
//	box, err := cell.Compute(ctx, func(ctx context.Context) (*ast.Tree, error) {
//	    return parse(ctx)
//	})
//	if err != nil {
//	    return err
//	}
//	tree := box.Steal()
//
// Errors are sticky: a cell that failed keeps returning the same error and
// never runs its function again.
//
// # Faults
//
// Two conditions are programming faults rather than errors and are raised as
// panics: stealing a box twice (*StealFault) and a computation that
// transitively requests its own cell (*CycleFault). Both mean the stage
// graph's acyclic, single-consumer shape was violated.
//
// # Fill-once slots
//
// OnceSlot publishes a value exactly once; after publication it may be read
// from any goroutine without further synchronization by the caller.
package memo
