package lazyref

import (
	"errors"
	"sync/atomic"
)

// Shared fixtures for handle tests

// errBoom is the canonical factory failure used across tests.
var errBoom = errors.New("boom")

// makeCountingFactory returns a factory producing value and a counter of
// its invocations.
func makeCountingFactory(value int) (Factory[int], *atomic.Int64) {
	var calls atomic.Int64
	return func() (int, error) {
		calls.Add(1)
		return value, nil
	}, &calls
}

// makeFailingFactory returns a factory that always fails with err and a
// counter of its invocations.
func makeFailingFactory(err error) (Factory[int], *atomic.Int64) {
	var calls atomic.Int64
	return func() (int, error) {
		calls.Add(1)
		return 0, err
	}, &calls
}

// makePanicFactory returns a factory that panics with the given value.
func makePanicFactory(value any) Factory[int] {
	return func() (int, error) {
		panic(value)
	}
}
