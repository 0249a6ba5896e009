package worker

import (
	"context"
	"time"

	apperrors "github.com/domainstack/api/pkg/errors"
)

// retry reattempts fn up to attempts times with linear backoff. Only
// retryable errors are reattempted; a fatal error is returned immediately
// so the retry policy is a pure function of the error kind.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay * time.Duration(i)):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
	}
	return err
}
