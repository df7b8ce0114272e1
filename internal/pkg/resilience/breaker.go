package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerPolicy configures the circuit breaker guarding one dependency.
//
// The breaker trips when ConsecutiveFailures is reached, or when at least
// MinRequests calls were seen in the current Window and the failure ratio
// reaches FailureRatio. Either criterion is disabled by its zero value.
type BreakerPolicy struct {
	Enabled             bool
	Name                string
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32

	// Window is the cyclic period after which closed-state counts reset.
	// Zero keeps counting until the breaker changes state.
	Window time.Duration

	// Cooldown is how long the breaker stays open before half-opening.
	Cooldown time.Duration

	// HalfOpenProbes is the number of calls let through while half-open.
	HalfOpenProbes uint32

	// IsFault reports whether err says something about the dependency's
	// health. Nil counts every error. Calls abandoned by the caller never
	// count, whatever IsFault says.
	IsFault func(err error) bool
}

// callerDone marks an error returned after the caller's context was done.
type callerDone struct{ err error }

func (e callerDone) Error() string { return e.err.Error() }
func (e callerDone) Unwrap() error { return e.err }

func (p BreakerPolicy) isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var done callerDone
	if errors.As(err, &done) || errors.Is(err, context.Canceled) {
		return true
	}
	if p.IsFault != nil {
		return !p.IsFault(err)
	}
	return false
}

func (p BreakerPolicy) readyToTrip(c gobreaker.Counts) bool {
	if p.ConsecutiveFailures > 0 && c.ConsecutiveFailures >= p.ConsecutiveFailures {
		return true
	}
	if p.FailureRatio > 0 && c.Requests >= p.MinRequests && c.Requests > 0 {
		return float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
	}
	return false
}

// NewBreaker builds a gobreaker instance from p. onStateChange may be nil.
func NewBreaker[T any](p BreakerPolicy, onStateChange func(name string, from, to gobreaker.State)) *gobreaker.CircuitBreaker[T] {
	probes := p.HalfOpenProbes
	if probes == 0 {
		probes = 1
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          p.Name,
		MaxRequests:   probes,
		Interval:      p.Window,
		Timeout:       p.Cooldown,
		ReadyToTrip:   p.readyToTrip,
		IsSuccessful:  p.isSuccessful,
		OnStateChange: onStateChange,
	})
}

// Breaker routes calls through cb. Calls rejected by an open (or saturated
// half-open) breaker fail with ErrCircuitOpen without reaching next.
func Breaker[T any](cb *gobreaker.CircuitBreaker[T]) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			v, err := cb.Execute(func() (T, error) {
				v, err := next(ctx)
				if err != nil && ctx.Err() != nil {
					return v, callerDone{err: err}
				}
				return v, err
			})
			var done callerDone
			if errors.As(err, &done) {
				return v, done.err
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return v, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, cb.Name(), err)
			}
			return v, err
		}
	}
}
