// Package retry implements the collaborator-boundary retry policy:
// bounded attempts with capped exponential backoff and a per-attempt
// timeout. Saga logic never retries on its own; it only distinguishes
// success from exhausted, terminal failure.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds retries for a single collaborator call
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// DefaultPolicy matches the defaults used for all collaborator calls
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		AttemptTimeout:  5 * time.Second,
	}
}

// Permanent marks an error as a business rejection that must not be
// retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy. Each attempt gets its own timeout context.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
		return op(attemptCtx)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxAttempts))
}

// DoVoid runs an operation without a result under the policy
func DoVoid(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
