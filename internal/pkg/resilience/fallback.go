package resilience

import "context"

// FallbackFunc produces a substitute result for a call that failed with cause.
type FallbackFunc[T any] func(ctx context.Context, cause error) (T, error)

// Fallback replaces any error from next with the result of fb. The fallback
// runs on its own goroutine with a context detached from the caller's
// cancellation; the caller blocks until it has produced a result.
func Fallback[T any](fb FallbackFunc[T]) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			v, err := next(ctx)
			if err == nil {
				return v, nil
			}

			done := make(chan result[T], 1)
			go func() {
				fv, ferr := fb(context.WithoutCancel(ctx), err)
				done <- result[T]{value: fv, err: ferr}
			}()
			r := <-done
			return r.value, r.err
		}
	}
}
