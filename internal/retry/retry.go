// Package retry implements the bounded retry policy applied to a single
// matrix cell.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
)

// Policy bounds how often an operation is attempted.
type Policy struct {
	// MaxRetry is the number of attempts after the first one
	MaxRetry int

	// Delay is the fixed pause between attempts
	Delay time.Duration

	// Retryable decides whether a failure earns another attempt. Nil means
	// DefaultRetryable.
	Retryable func(error) bool

	// OnFailure, if set, is called after every failed attempt
	OnFailure func(attempt int, err error, willRetry bool)
}

// DefaultRetryable retries everything except cancellation.
func DefaultRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Attempts is the total number of times op may be called.
func (p Policy) Attempts() int {
	if p.MaxRetry < 0 {
		return 1
	}
	return p.MaxRetry + 1
}

// Do calls op until it succeeds, a non-retryable error occurs, the context is
// done, or Attempts calls have failed. Attempts are numbered from zero. It
// returns how many calls were made and the last error.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	max := p.Attempts()

	// utility.Retry swaps a zero delay for its own default
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}

	attempts := 0
	var lastErr error
	err := utility.Retry(ctx, func() (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		attempt := attempts
		attempts++

		lastErr = op(attempt)
		if lastErr == nil {
			return false, nil
		}

		willRetry := attempts < max && retryable(lastErr)
		if p.OnFailure != nil {
			p.OnFailure(attempt, lastErr, willRetry)
		}
		grip.Debug(message.Fields{
			"message":    "attempt failed",
			"attempt":    attempt,
			"will_retry": willRetry,
			"error":      lastErr.Error(),
		})
		return willRetry, lastErr
	}, utility.RetryOptions{
		MaxAttempts: max,
		MinDelay:    delay,
		MaxDelay:    delay,
	})
	if err == nil {
		return attempts, nil
	}
	if lastErr != nil && ctx.Err() == nil {
		return attempts, lastErr
	}
	return attempts, err
}
