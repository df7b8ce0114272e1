package resilience

import (
	"context"

	"github.com/sony/gobreaker/v2"
)

// Policies groups the independently toggled policies for one dependency.
type Policies struct {
	Timeout TimeoutPolicy
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

// Pipeline applies the enabled policies to calls of one dependency. It owns
// the breaker, so a single Pipeline must be shared by all callers of that
// dependency. Safe for concurrent use.
type Pipeline[T any] struct {
	breaker     *gobreaker.CircuitBreaker[T]
	middlewares []Middleware[T]
}

type PipelineOption[T any] func(*pipelineOptions[T])

type pipelineOptions[T any] struct {
	fallback      FallbackFunc[T]
	onStateChange func(name string, from, to gobreaker.State)
}

// WithFallback installs fb as the outermost policy.
func WithFallback[T any](fb FallbackFunc[T]) PipelineOption[T] {
	return func(o *pipelineOptions[T]) { o.fallback = fb }
}

// WithStateChange registers a hook for breaker transitions.
func WithStateChange[T any](fn func(name string, from, to gobreaker.State)) PipelineOption[T] {
	return func(o *pipelineOptions[T]) { o.onStateChange = fn }
}

// NewPipeline composes the enabled policies. A breaker without its own
// IsFault classifies errors with the retry policy's RetryIf.
func NewPipeline[T any](p Policies, opts ...PipelineOption[T]) *Pipeline[T] {
	var o pipelineOptions[T]
	for _, opt := range opts {
		opt(&o)
	}

	pl := &Pipeline[T]{}
	if o.fallback != nil {
		pl.middlewares = append(pl.middlewares, Fallback(o.fallback))
	}
	if p.Breaker.Enabled {
		if p.Breaker.IsFault == nil {
			p.Breaker.IsFault = p.Retry.RetryIf
		}
		pl.breaker = NewBreaker[T](p.Breaker, o.onStateChange)
		pl.middlewares = append(pl.middlewares, Breaker(pl.breaker))
	}
	if p.Retry.Enabled {
		pl.middlewares = append(pl.middlewares, Retry[T](p.Retry))
	}
	if p.Timeout.Enabled && p.Timeout.Duration > 0 {
		pl.middlewares = append(pl.middlewares, Timeout[T](p.Timeout.Duration))
	}
	return pl
}

// Execute runs call under the pipeline's policies.
func (p *Pipeline[T]) Execute(ctx context.Context, call Call[T]) (T, error) {
	return Chain(call, p.middlewares...)(ctx)
}

// State reports the breaker state; StateClosed when no breaker is configured.
func (p *Pipeline[T]) State() gobreaker.State {
	if p.breaker == nil {
		return gobreaker.StateClosed
	}
	return p.breaker.State()
}
