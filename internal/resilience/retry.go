// Package resilience bounds calls to external services with a per-call
// deadline and a bounded exponential retry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy configures deadlines and retries for one external dependency.
type Policy struct {
	Timeout    time.Duration // per attempt; zero disables
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // first retry delay
	MaxBackoff time.Duration // cap on a single delay; zero disables
	Jitter     time.Duration
}

// DefaultPolicy is used when no configuration is supplied.
var DefaultPolicy = Policy{
	Timeout:    60 * time.Second,
	MaxRetries: 2,
	Backoff:    200 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
	Jitter:     50 * time.Millisecond,
}

// RetryableError marks a transient failure that may succeed on retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as transient. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is worth another attempt: explicitly
// marked errors, network timeouts and per-attempt deadline expiry.
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRetryableStatus reports whether an HTTP status code signals a transient failure.
func IsRetryableStatus(code int) bool {
	return code == 429 || code >= 500
}

func (p Policy) backoff() retry.Backoff {
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), b) // #nosec G115 -- non-negative
}

// Do runs fn under the policy. Each attempt gets its own deadline; only
// retryable failures are retried, and cancellation of ctx stops immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
