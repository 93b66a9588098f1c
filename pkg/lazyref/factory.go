package lazyref

// Factory produces the value for a cell.
// It is invoked at most once per cell, on first force. Returning an error
// poisons the cell: the factory is dropped and never re-invoked.
//
// Example:
//
//	factory := func() (*sql.DB, error) {
//	    return sql.Open("sqlite", "./app.db")
//	}
type Factory[T any] func() (T, error)

// Finalizer tears down a value when the last handle is released.
// It runs exactly once, on the goroutine performing the final release,
// and only if the cell holds a value. Pending and poisoned cells are
// destroyed without a finalizer call.
type Finalizer[T any] func(T)

// cellState tracks the lifecycle of a lazy cell.
// Pending moves to Ready or Poisoned exactly once and never back.
type cellState int32

const (
	statePending cellState = iota
	stateReady
	statePoisoned
)

// reentrantForce is panicked by a single-goroutine cell when its factory
// forces the cell being initialized. The outer force recovers it and
// poisons the cell with ErrReentrantInit.
type reentrantForce struct {
	name string
}
