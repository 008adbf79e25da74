package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("mirror unreachable")
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond), WithMaxRetries(5))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	attempts := 0
	sentinel := errors.New("bad credentials")
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return PermanentError(sentinel)
	}, WithInitialDelay(time.Millisecond), WithMaxRetries(5))

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ClassifierRejects(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return context.Canceled
	}, WithInitialDelay(time.Millisecond), WithMaxRetries(5))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_MaxRetries(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return errors.New("still down")
	}, WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond), WithMaxRetries(2))

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestServiceBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewServiceBreaker("ip-lookup", WithFailureThreshold(2), WithTimeout(time.Minute))
	fail := errors.New("timeout")

	require.ErrorIs(t, b.Execute(func() error { return fail }), fail)
	require.ErrorIs(t, b.Execute(func() error { return fail }), fail)
	assert.True(t, b.IsOpen())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.True(t, IsOpenError(err))
	assert.False(t, called)
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()

	b := NewServiceBreaker("echo")
	ip, err := ExecuteWithResult(b, func() (string, error) { return "203.0.113.7", nil })
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", ip)
	assert.Equal(t, "closed", b.State())
}
