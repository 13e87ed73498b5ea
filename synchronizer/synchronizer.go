// Package synchronizer defines the contract for the external state
// synchronizer spec.md §1 assumes exists: a linearizable, log-backed
// replicated register providing compare-and-set over one group's
// ReaderGroupState. This module does not implement a state store (an
// explicit non-goal, spec.md §1); it defines the seam and ships two
// adapters — syncmem, a single-process reference implementation, and
// syncetcd, a real backend wired to an existing etcd cluster.
package synchronizer

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/anirudhkovuru/pravega/state"
)

// NewSegmentID mints a fresh physical identity for a synchronizer
// segment, the way weed/cluster/lock_manager.LockManager mints a fresh
// renewToken per lock acquisition: a random UUID, opaque beyond
// distinguishing this incarnation of a group's backing storage segment
// from any prior one with the same logical name (spec.md §4.C).
func NewSegmentID() string {
	return uuid.New().String()
}

// Revision identifies one committed version of the replicated snapshot.
// It has no meaning outside the synchronizer that issued it.
type Revision uint64

// ErrConflict is TransientSynchronizerConflict from spec.md §7: the
// compare-and-set lost a race against another writer. The optimistic
// loop in coordinator retries transparently on this error; it must
// never escape to a caller of Coordinator.
var ErrConflict = errors.New("synchronizer: conditional update lost a concurrent race")

// StateSynchronizer is the seam every Coordinator method transacts
// through. Implementations must be safe for concurrent use by many
// coordinator instances of the same group across processes.
type StateSynchronizer interface {
	// Fetch returns the latest known snapshot and its revision. It may
	// serve a locally cached copy; FetchLatest forces a round trip.
	Fetch(ctx context.Context) (*state.State, Revision, error)

	// FetchLatest bypasses any local cache and reads through to the
	// backing store, satisfying the "fetchUpdates() read-your-writes"
	// contract spec.md §5 requires.
	FetchLatest(ctx context.Context) (*state.State, Revision, error)

	// UpdateConditionally applies update only if the snapshot is still
	// at expected when the write lands; on a lost race it returns
	// ErrConflict and the caller must re-read and retry. A nil update
	// is handled by OptimisticUpdate, which skips the call entirely.
	UpdateConditionally(ctx context.Context, expected Revision, update state.Update) (*state.State, Revision, error)

	// UpdateUnconditionally publishes update without a compare-and-set,
	// for updates the caller asserts are commutative or terminal
	// (spec.md §5).
	UpdateUnconditionally(ctx context.Context, update state.Update) (*state.State, Revision, error)
}

// OptimisticUpdate is the generic retry helper Design Note 1 (spec.md
// §9) calls for: read the latest snapshot, compute zero-or-one updates
// with a pure function, and submit conditionally, retrying on
// ErrConflict until it commits or fn signals no-op by returning a nil
// update. fn must not perform side effects — those belong after this
// call returns, once the caller knows the update committed.
func OptimisticUpdate(ctx context.Context, sync StateSynchronizer, fn func(s *state.State) (state.Update, error)) (*state.State, error) {
	for {
		s, rev, err := sync.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		update, err := fn(s)
		if err != nil {
			return nil, err
		}
		if update == nil {
			return s, nil
		}
		next, _, err := sync.UpdateConditionally(ctx, rev, update)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
}
