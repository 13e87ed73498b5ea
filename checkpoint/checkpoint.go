// Package checkpoint implements the checkpoint sub-engine (component C):
// admission of new checkpoints under the outstanding-request cap,
// tracking of per-reader reported positions, and the completion
// predicate. It is pure data plus pure functions — no I/O, no locking —
// so it can be embedded verbatim inside an immutable state.State
// snapshot and copied on every update, the way
// weed/mq/coordinator.ConsumerGroup embeds plain data copied per
// rebalance.
package checkpoint

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/anirudhkovuru/pravega/model"
)

// SilentSuffix marks a checkpoint id as silent: it drives stream-cut
// computation but never surfaces EventRead.isCheckpoint=true to readers.
const SilentSuffix = "_SILENT_"

// NewSilentID mints a fresh silent checkpoint id: 32 random bytes,
// base64url-encoded, with SilentSuffix appended. Collision probability
// is 2^-128; spec.md §9 treats a collision as undefined behavior.
func NewSilentID() (model.CheckpointID, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return model.CheckpointID(base64.URLEncoding.EncodeToString(raw[:]) + SilentSuffix), nil
}

// IsSilent reports whether id carries the silent-checkpoint suffix.
func IsSilent(id model.CheckpointID) bool {
	s := string(id)
	if len(s) < len(SilentSuffix) {
		return false
	}
	return s[len(s)-len(SilentSuffix):] == SilentSuffix
}

// Completed is the durable record of the last checkpoint whose positions
// were captured, kept so ClearCheckpointsBefore can report positions to
// a caller that raced the clearing.
type Completed struct {
	ID        model.CheckpointID
	Positions map[model.Stream]map[model.Segment]int64
}

// Round is the bookkeeping for one outstanding checkpoint.
type Round struct {
	ID       model.CheckpointID
	Silent   bool
	Pending  map[model.ReaderID]bool                          // readers the round waits on; entries stay after reporting
	Reported map[model.ReaderID]map[model.Segment]int64        // per-reader reported positions
	Snapshot map[model.ReaderID]bool                           // readers online at creation time, for invariant 3
}

func (r *Round) clone() *Round {
	c := &Round{ID: r.ID, Silent: r.Silent}
	c.Pending = make(map[model.ReaderID]bool, len(r.Pending))
	for k, v := range r.Pending {
		c.Pending[k] = v
	}
	c.Reported = make(map[model.ReaderID]map[model.Segment]int64, len(r.Reported))
	for k, v := range r.Reported {
		m := make(map[model.Segment]int64, len(v))
		for seg, off := range v {
			m[seg] = off
		}
		c.Reported[k] = m
	}
	c.Snapshot = make(map[model.ReaderID]bool, len(r.Snapshot))
	for k, v := range r.Snapshot {
		c.Snapshot[k] = v
	}
	return c
}

// Complete reports whether every reader snapshotted into this round has
// either reported or is listed in offlineSubstitutes (readers that went
// offline before reporting, substituted with their last known position).
func (r *Round) Complete(offlineSubstitutes map[model.ReaderID]map[model.Segment]int64) bool {
	for reader := range r.Pending {
		if _, reported := r.Reported[reader]; reported {
			continue
		}
		if _, offline := offlineSubstitutes[reader]; offline {
			continue
		}
		return false
	}
	return true
}

// MergedPositions unions every reporter's positions, keyed by segment,
// substituting offline readers' last known offsets where the reader
// never reported directly.
func (r *Round) MergedPositions(offlineSubstitutes map[model.ReaderID]map[model.Segment]int64) map[model.Segment]int64 {
	out := make(map[model.Segment]int64)
	for _, positions := range r.Reported {
		for seg, off := range positions {
			out[seg] = off
		}
	}
	for reader := range r.Pending {
		if _, reported := r.Reported[reader]; reported {
			continue
		}
		if sub, ok := offlineSubstitutes[reader]; ok {
			for seg, off := range sub {
				out[seg] = off
			}
		}
	}
	return out
}

// State is the checkpoint sub-engine's slice of a state.State snapshot
// (spec.md §3's CheckpointState).
type State struct {
	Outstanding   []*Round // FIFO, oldest first
	LastCompleted *Completed
}

// NewState returns an empty checkpoint engine state.
func NewState() State {
	return State{}
}

// Clone deep-copies s so callers can build a modified successor without
// aliasing the receiver's internals — every state.Update transformer
// must not mutate the snapshot it was handed.
func (s State) Clone() State {
	out := State{Outstanding: make([]*Round, len(s.Outstanding))}
	for i, r := range s.Outstanding {
		out.Outstanding[i] = r.clone()
	}
	if s.LastCompleted != nil {
		lc := &Completed{ID: s.LastCompleted.ID, Positions: make(map[model.Stream]map[model.Segment]int64, len(s.LastCompleted.Positions))}
		for stream, cut := range s.LastCompleted.Positions {
			m := make(map[model.Segment]int64, len(cut))
			for seg, off := range cut {
				m[seg] = off
			}
			lc.Positions[stream] = m
		}
		out.LastCompleted = lc
	}
	return out
}

// ErrMaxOutstanding is returned by Create when admission fails because
// the group is already at its configured cap.
var ErrMaxOutstanding = errMaxOutstanding{}

type errMaxOutstanding struct{}

func (errMaxOutstanding) Error() string { return "checkpoint: max outstanding checkpoints exceeded" }

// Create admits a new checkpoint iff the outstanding count is below max.
// Admission and the FIFO append happen together so two racing callers
// applying this against the same snapshot can never both succeed past
// the cap — the caller (state.CreateCheckpoint.Apply) only ever calls
// this on one snapshot at a time inside the optimistic loop.
func (s State) Create(id model.CheckpointID, onlineReaders map[model.ReaderID]bool, max uint32) (State, error) {
	if uint32(len(s.Outstanding)) >= max {
		return s, ErrMaxOutstanding
	}
	next := s.Clone()
	round := &Round{
		ID:       id,
		Silent:   IsSilent(id),
		Pending:  make(map[model.ReaderID]bool, len(onlineReaders)),
		Reported: make(map[model.ReaderID]map[model.Segment]int64),
		Snapshot: make(map[model.ReaderID]bool, len(onlineReaders)),
	}
	for r := range onlineReaders {
		round.Pending[r] = true
		round.Snapshot[r] = true
	}
	next.Outstanding = append(next.Outstanding, round)
	return next, nil
}

// Report records reader's positions against id. A no-op if id is not
// outstanding (it may already have been cleared by a racing coordinator).
func (s State) Report(id model.CheckpointID, reader model.ReaderID, positions map[model.Segment]int64) State {
	next := s.Clone()
	for _, r := range next.Outstanding {
		if r.ID != id {
			continue
		}
		m := make(map[model.Segment]int64, len(positions))
		for seg, off := range positions {
			m[seg] = off
		}
		r.Reported[reader] = m
		break
	}
	return next
}

// SubstituteOffline treats reader as having implicitly reported lastPos
// in every outstanding round that still lists it pending — used when a
// reader goes offline mid-checkpoint (spec.md §4.E, scenario S5).
func (s State) SubstituteOffline(reader model.ReaderID, lastPos map[model.Segment]int64) State {
	next := s.Clone()
	for _, r := range next.Outstanding {
		if !r.Pending[reader] {
			continue
		}
		if _, already := r.Reported[reader]; already {
			continue
		}
		m := make(map[model.Segment]int64, len(lastPos))
		for seg, off := range lastPos {
			m[seg] = off
		}
		r.Reported[reader] = m
	}
	return next
}

// ClearBefore pops every round up to and including id from the FIFO, in
// order, advancing LastCompleted to the last cleared round that was
// actually complete. Returns the resulting state and, if id itself was
// found and complete, its merged positions grouped by stream.
func (s State) ClearBefore(id model.CheckpointID, streamOf func(model.Segment) model.Stream) (State, map[model.Stream]model.StreamCut, error) {
	next := s.Clone()
	idx := -1
	for i, r := range next.Outstanding {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return next, nil, ErrCheckpointFailed
	}
	var result map[model.Stream]model.StreamCut
	for i := 0; i <= idx; i++ {
		r := next.Outstanding[i]
		if !r.Complete(nil) {
			continue
		}
		merged := r.MergedPositions(nil)
		byStream := make(map[model.Stream]map[model.Segment]int64)
		for seg, off := range merged {
			if byStream[seg.Stream] == nil {
				byStream[seg.Stream] = make(map[model.Segment]int64)
			}
			byStream[seg.Stream][seg] = off
		}
		next.LastCompleted = &Completed{ID: r.ID, Positions: byStream}
		if r.ID == id {
			result = make(map[model.Stream]model.StreamCut, len(byStream))
			for stream, cut := range byStream {
				sc := make(model.StreamCut, len(cut))
				for seg, off := range cut {
					sc[seg] = off
				}
				result[stream] = sc
			}
		}
	}
	next.Outstanding = next.Outstanding[idx+1:]
	if result == nil {
		return next, nil, ErrCheckpointFailed
	}
	return next, result, nil
}

// ErrCheckpointFailed mirrors rgerrors.ErrCheckpointFailed without an
// import cycle; coordinator wraps it into the shared sentinel at the
// package boundary.
var ErrCheckpointFailed = errCheckpointFailed{}

type errCheckpointFailed struct{}

func (errCheckpointFailed) Error() string {
	return "checkpoint: positions unavailable, cleared before consumption"
}

// Find returns the outstanding round for id, if any.
func (s State) Find(id model.CheckpointID) (*Round, bool) {
	for _, r := range s.Outstanding {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}
