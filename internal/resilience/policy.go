package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// Policy bundles the fault-isolation wrapping applied to every capability
// provider call: circuit breaker admission, retry with backoff, and an
// overall per-call timeout. One Policy is shared per provider kind.
type Policy struct {
	Breaker     *CircuitBreaker
	Retry       RetryConfig
	CallTimeout time.Duration
}

// Call runs fn under the policy. Admission is checked once against the
// breaker; retries happen inside a single admitted call, so only the call's
// final outcome updates breaker state. The timeout covers the whole admitted
// call including backoff sleeps; expiry is treated as a provider failure,
// not a caller cancellation.
func Call[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	// A nil policy means no guarding at all: one direct call.
	if p == nil {
		return fn(ctx)
	}

	if p.Breaker != nil {
		if err := p.Breaker.allowRequest(); err != nil {
			return zero, err
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if p.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		defer cancel()
	}

	val, err := DoVal(callCtx, p.Retry, fn)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = NewTransientError(eris.Wrapf(err, "resilience: call exceeded %s timeout", p.CallTimeout), 0)
	}

	if p.Breaker != nil {
		p.Breaker.recordResult(err)
	}
	return val, err
}
