package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy re-attempts a failed call with exponential backoff.
// MaxAttempts counts the first call, so 3 means up to two retries.
type RetryPolicy struct {
	Enabled         bool
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// RetryIf reports whether err is transient. Nil retries every error
	// except cancellation of the caller's context.
	RetryIf func(err error) bool

	// OnRetry is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return true
}

// Retry re-runs next on error according to p. Successful results are
// returned as-is, whatever their value. Retrying stops early when ctx is done.
func Retry[T any](p RetryPolicy) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			op := func() (T, error) {
				v, err := next(ctx)
				if err != nil && (ctx.Err() != nil || !p.retryable(err)) {
					return v, backoff.Permanent(err)
				}
				return v, err
			}

			return backoff.RetryNotifyWithData(op, backoff.WithContext(p.newBackOff(), ctx), p.OnRetry)
		}
	}
}
