package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	result := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	calls := 0
	result := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.RetryReasons, 2)
}

func TestRetryExhaustsBudget(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	result := RetryWithBackoff(context.Background(), fastConfig(2), func() error {
		calls++
		return boom
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	assert.Equal(t, boom, result.LastError)
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	result := RetryWithBackoff(ctx, fastConfig(50), func() error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	assert.False(t, result.Success)
	assert.LessOrEqual(t, calls, 2)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelayIsCapped(t *testing.T) {
	config := fastConfig(10)
	for attempt := 0; attempt < 10; attempt++ {
		assert.LessOrEqual(t, calculateDelay(config, attempt), config.MaxDelay)
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryableError(errors.New("HTTP 503 Service Unavailable")))
	assert.True(t, IsRetryableError(errors.New("context deadline exceeded")))

	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(errors.New("invalid api key")))
}
