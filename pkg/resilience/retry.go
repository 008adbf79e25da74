package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffRetryOption configures backoff retry behavior
type BackoffRetryOption func(*backoffConfig)

type backoffConfig struct {
	maxElapsed   time.Duration
	maxRetries   uint64
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	onRetry      func(err error, duration time.Duration)
	classifier   func(error) bool // true if the error is worth another attempt
}

// WithMaxElapsed sets the maximum total time for retries
func WithMaxElapsed(d time.Duration) BackoffRetryOption {
	return func(c *backoffConfig) {
		c.maxElapsed = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(n uint64) BackoffRetryOption {
	return func(c *backoffConfig) {
		c.maxRetries = n
	}
}

// WithInitialDelay sets the initial delay between retries
func WithInitialDelay(d time.Duration) BackoffRetryOption {
	return func(c *backoffConfig) {
		c.initialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between retries
func WithMaxDelay(d time.Duration) BackoffRetryOption {
	return func(c *backoffConfig) {
		c.maxDelay = d
	}
}

// WithOnRetry sets a callback for each retry attempt
func WithOnRetry(fn func(err error, duration time.Duration)) BackoffRetryOption {
	return func(c *backoffConfig) {
		c.onRetry = fn
	}
}

// WithRetryClassifier sets a function to determine if an error is retryable
func WithRetryClassifier(fn func(error) bool) BackoffRetryOption {
	return func(c *backoffConfig) {
		c.classifier = fn
	}
}

// RetryWithBackoff runs operation until it succeeds, returns a permanent
// error, exhausts its retries or elapsed time, or ctx is done.
func RetryWithBackoff(ctx context.Context, operation func() error, opts ...BackoffRetryOption) error {
	cfg := &backoffConfig{
		maxElapsed:   2 * time.Minute,
		initialDelay: time.Second,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		classifier:   DefaultRetryClassifier,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initialDelay
	b.MaxInterval = cfg.maxDelay
	b.MaxElapsedTime = cfg.maxElapsed
	b.Multiplier = cfg.multiplier
	b.RandomizationFactor = 0.1

	var bo backoff.BackOff = b
	if cfg.maxRetries > 0 {
		bo = backoff.WithMaxRetries(b, cfg.maxRetries)
	}
	bo = backoff.WithContext(bo, ctx)

	wrapped := func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if cfg.classifier != nil && !cfg.classifier(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if cfg.onRetry != nil {
		return backoff.RetryNotify(wrapped, bo, cfg.onRetry)
	}
	return backoff.Retry(wrapped, bo)
}

// DefaultRetryClassifier treats cancellation as final and everything else as
// worth retrying.
func DefaultRetryClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// PermanentError wraps an error to indicate it should not be retried
func PermanentError(err error) error {
	return backoff.Permanent(err)
}
