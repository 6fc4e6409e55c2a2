// Package retry wraps exponential backoff for dialing infrastructure.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs op with exponential backoff, giving up after retries extra attempts
// or when ctx is done.
func Do(ctx context.Context, retries int, op func() error) error {
	if retries < 0 {
		retries = 0
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
}

// Permanent stops Do from retrying err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
