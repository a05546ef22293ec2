package tools

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs fn up to attempts times with a fixed delay between tries.
// notify, if set, sees every failed attempt that will be retried.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error, notify func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return fn()
		},
		policy,
		func(err error, _ time.Duration) {
			if notify != nil {
				notify(attempt, err)
			}
		},
	)
}
