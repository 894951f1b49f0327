// Package retry runs an operation under an explicit retry policy.
package retry

import (
	"context"
	"time"
)

// Policy describes how an operation is retried. The zero value runs the
// operation exactly once.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries every error.
	Retryable func(error) bool
}

// Never runs the operation once.
var Never = Policy{MaxAttempts: 1}

// Default is three attempts with 200ms, 400ms backoff.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     5 * time.Second,
		Retryable:    retryable,
	}
}

// delay returns the wait before attempt n+1 (n starts at 1).
func (p Policy) delay(n int) time.Duration {
	d := p.InitialDelay
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Do calls fn until it succeeds, the policy gives up, or ctx is done.
// The last error from fn is returned as is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 1; n <= attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if n == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		timer := time.NewTimer(p.delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
