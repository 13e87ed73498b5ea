// Package state implements the replicated ReaderGroupState value
// (component A) and its closed set of updates (component B). Every
// update is a pure (state, params) -> newState transformer; nothing in
// this package performs I/O, matching the teacher's small copyable
// coordination structs (weed/mq/coordinator.ConsumerGroup) generalized
// to the fuller reader-group snapshot spec.md §3 describes.
package state

import (
	"github.com/anirudhkovuru/pravega/checkpoint"
	"github.com/anirudhkovuru/pravega/model"
)

// State is an immutable snapshot. Every field is only ever replaced,
// never mutated in place, by an Update.Apply.
type State struct {
	Config    model.ReaderGroupConfig
	NewConfig *model.ReaderGroupConfig // non-nil iff ConfigState == Reinitializing

	ConfigState model.ConfigState
	Generation  uint64

	OnlineReaders map[model.ReaderID]bool

	// AssignedSegments maps a reader to the segments it owns and their
	// last known offsets.
	AssignedSegments map[model.ReaderID]map[model.SegmentWithRange]int64
	// UnassignedSegments are available for pull-based acquisition.
	UnassignedSegments map[model.SegmentWithRange]int64

	EndSegments map[model.Segment]int64

	LastReadPositions map[model.Stream]map[model.SegmentWithRange]int64

	Checkpoints checkpoint.State

	DistanceToTail map[model.ReaderID]int64
}

// Clone deep-copies s. Update.Apply implementations start from
// Clone and mutate the copy, never the receiver.
func (s *State) Clone() *State {
	out := &State{
		Config:      s.Config,
		ConfigState: s.ConfigState,
		Generation:  s.Generation,
		Checkpoints: s.Checkpoints.Clone(),
	}
	if s.NewConfig != nil {
		nc := *s.NewConfig
		out.NewConfig = &nc
	}
	out.OnlineReaders = make(map[model.ReaderID]bool, len(s.OnlineReaders))
	for k, v := range s.OnlineReaders {
		out.OnlineReaders[k] = v
	}
	out.AssignedSegments = make(map[model.ReaderID]map[model.SegmentWithRange]int64, len(s.AssignedSegments))
	for reader, segs := range s.AssignedSegments {
		m := make(map[model.SegmentWithRange]int64, len(segs))
		for seg, off := range segs {
			m[seg] = off
		}
		out.AssignedSegments[reader] = m
	}
	out.UnassignedSegments = make(map[model.SegmentWithRange]int64, len(s.UnassignedSegments))
	for seg, off := range s.UnassignedSegments {
		out.UnassignedSegments[seg] = off
	}
	out.EndSegments = make(map[model.Segment]int64, len(s.EndSegments))
	for seg, off := range s.EndSegments {
		out.EndSegments[seg] = off
	}
	out.LastReadPositions = make(map[model.Stream]map[model.SegmentWithRange]int64, len(s.LastReadPositions))
	for stream, pos := range s.LastReadPositions {
		m := make(map[model.SegmentWithRange]int64, len(pos))
		for seg, off := range pos {
			m[seg] = off
		}
		out.LastReadPositions[stream] = m
	}
	out.DistanceToTail = make(map[model.ReaderID]int64, len(s.DistanceToTail))
	for k, v := range s.DistanceToTail {
		out.DistanceToTail[k] = v
	}
	return out
}

// AllSegments returns the union of AssignedSegments and
// UnassignedSegments, the partition invariant 1 covers.
func (s *State) AllSegments() map[model.SegmentWithRange]int64 {
	out := make(map[model.SegmentWithRange]int64, len(s.UnassignedSegments))
	for seg, off := range s.UnassignedSegments {
		out[seg] = off
	}
	for _, segs := range s.AssignedSegments {
		for seg, off := range segs {
			out[seg] = off
		}
	}
	return out
}

// CheckInvariants validates the properties spec.md §8 requires to hold
// on every committed snapshot. Called by tests; no synchronizer calls
// it.
func (s *State) CheckInvariants() error {
	if uint32(len(s.Checkpoints.Outstanding)) > s.Config.MaxOutstandingCheckpointRequest {
		return errTooManyOutstanding
	}
	seen := make(map[model.SegmentWithRange]bool)
	for seg := range s.UnassignedSegments {
		if seen[seg] {
			return errSegmentInTwoPlaces
		}
		seen[seg] = true
	}
	for reader, segs := range s.AssignedSegments {
		if !s.OnlineReaders[reader] {
			return errAssignedToOfflineReader
		}
		for seg := range segs {
			if seen[seg] {
				return errSegmentInTwoPlaces
			}
			seen[seg] = true
		}
	}
	for reader := range s.OnlineReaders {
		if _, ok := s.AssignedSegments[reader]; !ok {
			return errOnlineReaderNotTracked
		}
	}
	if (s.ConfigState == model.Reinitializing) != (s.NewConfig != nil) {
		return errNewConfigMismatch
	}
	// Invariant 5 (spec.md §8): a round's pending set is bounded by
	// onlineReaders ∪ readers that went offline since the round was
	// created. round.Snapshot is exactly that latter membership test —
	// it records who was online when the round was created — so a
	// pending reader that is not currently online must both appear in
	// Snapshot and have already been substituted into Reported by
	// SubstituteOffline (checkpoint.go); a pending, offline reader with
	// neither means some caller shrank OnlineReaders without going
	// through ReaderOffline.
	for _, round := range s.Checkpoints.Outstanding {
		for reader := range round.Pending {
			if s.OnlineReaders[reader] {
				continue
			}
			if _, reported := round.Reported[reader]; reported && round.Snapshot[reader] {
				continue
			}
			return errPendingReaderUnaccounted
		}
	}
	return nil
}
