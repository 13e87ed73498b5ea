package rgerrors

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// DefaultUpstreamBackoff is the retry policy components fall back to
// when a caller doesn't configure one of their own: the same bounded
// exponential shape syncetcd.newGetBackoff uses around its own
// etcd-adjacent Get. Components exposing a caller-configured ceiling
// (spec.md §7) should take a factory of this shape rather than a bare
// backoff.BackOff, since a BackOff is single-use and must be
// reconstructed for every retried call.
func DefaultUpstreamBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return b
}

// Retry runs fn under policy, retrying only while fn's error is
// classified RetryableUpstream by IsRetryable; any other error, or ctx
// cancellation, ends the attempt immediately without further retries.
// policy is consumed by this one call and must not be reused.
func Retry(ctx context.Context, policy backoff.BackOff, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
