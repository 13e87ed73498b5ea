package rgerrors

import (
	"context"
	"errors"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxElapsedTime = 200 * time.Millisecond
	return b
}

func TestRetryRetriesOnlyRetryableUpstream(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	err := Retry(ctx, fastBackoff(), func() error {
		attempts++
		if attempts < 3 {
			return RetryableUpstream{Err: errors.New("transient")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsImmediatelyOnNonRetryableError(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	err := Retry(ctx, fastBackoff(), func() error {
		attempts++
		return ErrInvalidStream
	})
	assert.ErrorIs(t, err, ErrInvalidStream)
	assert.Equal(t, 1, attempts)
}

func TestRetryGivesUpAfterMaxElapsedTime(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	err := Retry(ctx, fastBackoff(), func() error {
		attempts++
		return RetryableUpstream{Err: errors.New("still down")}
	})
	assert.True(t, IsRetryable(err))
	assert.Greater(t, attempts, 1)
}
