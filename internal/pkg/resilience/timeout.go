package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutPolicy bounds the wait for a single attempt.
type TimeoutPolicy struct {
	Enabled  bool
	Duration time.Duration
}

// Timeout runs next on its own goroutine and returns ErrTimeout once d
// elapses, even if next does not honour ctx. next still receives the derived
// context so well-behaved callees abort their I/O at the deadline.
func Timeout[T any](d time.Duration) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			callCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan result[T], 1)
			go func() {
				v, err := next(callCtx)
				done <- result[T]{value: v, err: err}
			}()

			select {
			case r := <-done:
				if r.err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
					return r.value, fmt.Errorf("%w after %s: %w", ErrTimeout, d, r.err)
				}
				return r.value, r.err
			case <-callCtx.Done():
				var zero T
				if err := ctx.Err(); err != nil {
					return zero, err
				}
				return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
			}
		}
	}
}
