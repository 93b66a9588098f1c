package lazyref

import (
	"errors"
	"fmt"
)

// Sentinel errors for handle lifecycle.
var (
	// ErrReleased indicates a method was called on a released handle.
	ErrReleased = errors.New("handle released")

	// ErrPoisoned indicates the cell was poisoned by an earlier
	// initialization failure.
	ErrPoisoned = errors.New("cell poisoned by earlier failure")

	// ErrReentrantInit indicates a factory forced the cell it was
	// initializing.
	ErrReentrantInit = errors.New("reentrant initialization")
)

// InitError wraps a factory failure.
// The caller that triggered initialization receives it; later callers
// receive a *PoisonedError instead.
type InitError struct {
	// Name is the handle name for the cell that failed.
	Name string
	// Err is the error the factory returned.
	Err error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Name, e.Err)
}

// Unwrap returns the factory error for errors.Is/As support.
func (e *InitError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from a factory.
// It includes the stack trace for debugging.
type PanicError struct {
	// Name is the handle name for the cell that panicked.
	Name string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("init %s panicked: %v", e.Name, e.Value)
}

// PoisonedError reports an access to a poisoned cell.
// Cause holds the failure that poisoned the cell (an *InitError or
// *PanicError), preserved for inspection.
type PoisonedError struct {
	// Name is the handle name for the poisoned cell.
	Name string
	// Cause is the original initialization failure.
	Cause error
}

// Error implements the error interface.
func (e *PoisonedError) Error() string {
	return fmt.Sprintf("%s poisoned: %v", e.Name, e.Cause)
}

// Unwrap returns ErrPoisoned for errors.Is support.
func (e *PoisonedError) Unwrap() error {
	return ErrPoisoned
}
