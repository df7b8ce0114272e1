// Package resilience provides composable call wrappers (timeout, retry,
// circuit breaker and fallback) for calls to remote dependencies.
//
// Each policy is a Middleware that can be unit tested on its own; a Pipeline
// composes the enabled ones in a fixed order:
//
//	Fallback -> Breaker -> Retry -> Timeout -> call
//
// so every retry attempt gets its own deadline, the breaker sees one outcome per
// logical call, and the fallback catches whatever escapes the other three.
package resilience

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when a call does not complete within its deadline.
	ErrTimeout = errors.New("resilience: call timed out")

	// ErrCircuitOpen is returned when the breaker rejects a call without running it.
	ErrCircuitOpen = errors.New("resilience: circuit open")
)

// Call is a single invocation of a remote dependency.
type Call[T any] func(ctx context.Context) (T, error)

// Middleware wraps a Call with an additional policy.
type Middleware[T any] func(next Call[T]) Call[T]

// Chain wraps call with mws. The first middleware is the outermost one.
func Chain[T any](call Call[T], mws ...Middleware[T]) Call[T] {
	for i := len(mws) - 1; i >= 0; i-- {
		call = mws[i](call)
	}
	return call
}

type result[T any] struct {
	value T
	err   error
}
