package state

import "errors"

var (
	errTooManyOutstanding       = errors.New("state: outstanding checkpoints exceed configured max")
	errSegmentInTwoPlaces       = errors.New("state: segment present in more than one partition")
	errAssignedToOfflineReader  = errors.New("state: segments assigned to a reader not marked online")
	errOnlineReaderNotTracked   = errors.New("state: online reader has no assignment map entry")
	errNewConfigMismatch        = errors.New("state: newConfig presence disagrees with configState")
	errPendingReaderUnaccounted = errors.New("state: checkpoint round pending reader is offline without a substituted report")

	// ErrGenerationMismatch is returned by updates that carry an expected
	// generation when the snapshot's generation has moved on. The update
	// is not applied and the error is returned to the caller; the
	// optimistic loop retries only on synchronizer.ErrConflict, not on
	// this error.
	ErrGenerationMismatch = errors.New("state: expected generation does not match snapshot")

	// ErrIllegalTransition is returned when a ChangeConfigState request
	// names a transition not in the allowed set (spec.md §4.A).
	ErrIllegalTransition = errors.New("state: illegal configState transition")

	// ErrNotInitialized is returned by any update other than
	// ReaderGroupStateInit applied to a nil state.
	ErrNotInitialized = errors.New("state: reader group state has not been initialized")

	// ErrAlreadyInitialized is returned when ReaderGroupStateInit is
	// applied a second time.
	ErrAlreadyInitialized = errors.New("state: reader group state already initialized")

	// ErrSegmentNotInExpectedPartition is returned by AcquireSegment /
	// ReleaseSegment when the segment is not where the caller expects.
	ErrSegmentNotInExpectedPartition = errors.New("state: segment not in expected partition")

	// ErrReaderNotOnline is returned by operations that require an
	// already-online reader.
	ErrReaderNotOnline = errors.New("state: reader is not online")
)
