package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/angeless/travelcs/internal/errors"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetryConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustionWrapsLastError(t *testing.T) {
	cause := errors.New("connection refused")
	attempts := 0
	err := WithRetry(context.Background(), fastRetryConfig(2), func() error {
		attempts++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.True(t, kberrors.HasCode(err, kberrors.CodeEmbeddingFailed))
	assert.ErrorIs(t, err, cause)
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := WithRetry(ctx, fastRetryConfig(10), func() error {
		attempts++
		cancel()
		return errors.New("failing")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "no retries after cancellation")
}
