// Package rgerrors is the reader group coordinator's error taxonomy
// (spec.md §7): sentinel errors callers can classify with errors.Is,
// plus a mapping onto gRPC status codes for deployments that front the
// coordinator with a gRPC service boundary, following the pattern
// weed/mq/broker/broker_grpc_sub_coordinator.go uses to turn internal
// errors into status.Errorf(codes.X, ...) responses.
package rgerrors

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrMaxCheckpointsExceeded is surfaced to the caller of
	// initiateCheckpoint when admission fails; not retried.
	ErrMaxCheckpointsExceeded = errors.New("readergroup: max outstanding checkpoints exceeded")

	// ErrCheckpointFailed is surfaced when an awaited checkpoint's
	// positions were cleared before the caller consumed them.
	ErrCheckpointFailed = errors.New("readergroup: checkpoint positions unavailable, cleared before consumption")

	// ErrReinitializationRequired is surfaced when the group has been
	// deleted or its config replaced out from under the caller.
	ErrReinitializationRequired = errors.New("readergroup: group deleted or reconfigured, recreate local state")

	// ErrInvalidStream is surfaced when upstream reports a starting
	// stream no longer exists.
	ErrInvalidStream = errors.New("readergroup: starting stream no longer exists upstream")

	// ErrIllegalState is surfaced for operations invalid in the
	// snapshot's current configState, e.g. updateRetentionStreamCut
	// outside READY.
	ErrIllegalState = errors.New("readergroup: operation not valid in current lifecycle state")

	// ErrFatal wraps serialization/version mismatches; per spec.md §7
	// these crash the coordinator rather than being handled.
	ErrFatal = errors.New("readergroup: fatal — serialization/version mismatch")
)

// RetryableUpstream marks an error the caller-configured backoff policy
// should retry (connection reset, leader election, etc). Controller
// implementations wrap transient failures in this type; TransientSynchronizerConflict
// (the optimistic-loop retry) never escapes this package's callers, so
// it has no sentinel here — it is retried transparently inside the loop.
type RetryableUpstream struct {
	Err error
}

func (r RetryableUpstream) Error() string { return "readergroup: retryable upstream error: " + r.Err.Error() }
func (r RetryableUpstream) Unwrap() error { return r.Err }

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	var r RetryableUpstream
	return errors.As(err, &r)
}

// ToGRPCStatus maps a taxonomy error onto a *status.Status for a
// gRPC-fronted deployment's response path.
func ToGRPCStatus(err error) *status.Status {
	switch {
	case err == nil:
		return status.New(codes.OK, "")
	case errors.Is(err, ErrMaxCheckpointsExceeded):
		return status.New(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrCheckpointFailed):
		return status.New(codes.Aborted, err.Error())
	case errors.Is(err, ErrReinitializationRequired):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrInvalidStream):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, ErrIllegalState):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrFatal):
		return status.New(codes.Internal, err.Error())
	case IsRetryable(err):
		return status.New(codes.Unavailable, err.Error())
	default:
		return status.New(codes.Unknown, err.Error())
	}
}
