package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig is an exponential backoff policy. Only errors that
// IsRetryable accepts are retried.
type RetryConfig struct {
	MaxRetries   int // attempts after the first
	InitialDelay time.Duration
	MaxDelay     time.Duration // 0 leaves the delay uncapped
	Multiplier   float64
	Jitter       bool // wait a random 50-100% of each delay
}

// DefaultRetryConfig retries three times, waiting 0.5s, 1s and 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// backoff is the wait before retry n, counting from 0, without jitter.
func (c RetryConfig) backoff(n int) time.Duration {
	d := float64(c.InitialDelay)
	for range n {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

func (c RetryConfig) wait(n int) time.Duration {
	d := c.backoff(n)
	if c.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()/2))
	}
	return d
}

// Retry runs fn until it succeeds, fails permanently, exhausts the policy
// or ctx ends.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// exhaustedError wraps the last error of a spent retry policy. An outer
// retry loop that sees it returns at once, so nested policies never
// multiply attempts.
type exhaustedError struct {
	retries int
	err     error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.retries, e.err)
}

func (e *exhaustedError) Unwrap() error { return e.err }

// IsExhausted reports whether err came out of a retry policy that ran out
// of attempts.
func IsExhausted(err error) bool {
	var ex *exhaustedError
	return stderrors.As(err, &ex)
}

// RetryWithResult is Retry for functions returning a value. Permanent
// errors come back unwrapped. An exhausted policy wraps the last error so
// its kind survives, and that error is never retried again by an outer
// policy.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		switch {
		case err == nil:
			return v, nil
		case !IsRetryable(err), IsExhausted(err):
			return zero, err
		case n == cfg.MaxRetries && n == 0:
			return zero, err
		case n == cfg.MaxRetries:
			return zero, &exhaustedError{retries: n, err: err}
		}

		t := time.NewTimer(cfg.wait(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}

// RetryWithTimeout gives every attempt its own deadline. An attempt that
// hits that deadline while ctx is still live is passed through onTimeout,
// usually to turn it into a retryable error. A zero timeout means no
// per-attempt deadline.
func RetryWithTimeout[T any](
	ctx context.Context,
	cfg RetryConfig,
	timeout time.Duration,
	onTimeout func(err error) error,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	return RetryWithResult(ctx, cfg, func() (T, error) {
		if timeout <= 0 {
			return fn(ctx)
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		v, err := fn(actx)
		if err != nil && onTimeout != nil && ctx.Err() == nil && actx.Err() == context.DeadlineExceeded {
			var zero T
			return zero, onTimeout(err)
		}
		return v, err
	})
}
