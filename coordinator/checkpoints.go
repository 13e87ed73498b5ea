package coordinator

import (
	"context"
	"time"

	"github.com/anirudhkovuru/pravega/checkpoint"
	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgerrors"
	"github.com/anirudhkovuru/pravega/rgmetrics"
	"github.com/anirudhkovuru/pravega/state"
)

// pollInterval is the checkpoint-completion poll cadence spec.md §4.B
// fixes at 500ms, the same period weed/mq/sub_coordinator.Market ticks
// its own rebalance loop at.
const pollInterval = 500 * time.Millisecond

// Scheduler abstracts the passage of time so tests can drive the
// checkpoint poll deterministically instead of sleeping in wall-clock
// time (spec.md §9, "Scheduler injection"). RealScheduler is the
// production implementation.
type Scheduler interface {
	After(d time.Duration) <-chan time.Time
}

type realScheduler struct{}

func (realScheduler) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealScheduler drives ticks from the wall clock via time.After.
var RealScheduler Scheduler = realScheduler{}

// InitiateCheckpoint creates a checkpoint named name (observable unless
// the caller pre-suffixes it as silent), polls sched at pollInterval
// until every online reader has reported or gone offline, then consumes
// it by clearing the FIFO up to and including it and returns the merged
// per-stream positions. Cancelling ctx stops the wait; the checkpoint
// itself is left outstanding for the next coordinator to observe and
// clear (spec.md §4.B).
func (c *Coordinator) InitiateCheckpoint(ctx context.Context, name model.CheckpointID, sched Scheduler) (map[model.Stream]model.StreamCut, error) {
	admitted, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		return state.CreateCheckpoint{ID: name}, nil
	})
	if err != nil {
		if err == checkpoint.ErrMaxOutstanding {
			rgmetrics.IncRejected(c.groupName, rgmetrics.RejectMaxOutstanding)
			return nil, rgerrors.ErrMaxCheckpointsExceeded
		}
		return nil, err
	}
	rgmetrics.SetOutstanding(c.groupName, len(admitted.Checkpoints.Outstanding))

	started := time.Now()
	positions, err := c.awaitCheckpoint(ctx, name, sched)
	if err == nil {
		rgmetrics.ObserveCheckpointDuration(c.groupName, time.Since(started).Seconds())
	}
	return positions, err
}

// generateStreamCuts issues a silent checkpoint, awaits it, and projects
// the merged positions into the map generateStreamCuts(executor)
// returns per spec.md §4.D: every stream in config.startingStreamCuts is
// covered, filling from lastReadPositions for streams a completed round
// didn't capture (e.g. no online reader owned any of that stream's
// segments at snapshot time).
func (c *Coordinator) GenerateStreamCuts(ctx context.Context, sched Scheduler) (map[model.Stream]model.StreamCut, error) {
	id, err := checkpoint.NewSilentID()
	if err != nil {
		return nil, err
	}
	if _, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		return state.CreateCheckpoint{ID: id}, nil
	}); err != nil {
		if err == checkpoint.ErrMaxOutstanding {
			return nil, rgerrors.ErrMaxCheckpointsExceeded
		}
		return nil, err
	}
	positions, err := c.awaitCheckpoint(ctx, id, sched)
	if err != nil {
		return nil, err
	}

	s, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	for stream := range s.Config.StartingStreamCuts {
		if _, ok := positions[stream]; ok {
			continue
		}
		cut := model.StreamCut{}
		for seg, off := range s.LastReadPositions[stream] {
			cut[seg.Segment] = off
		}
		positions[stream] = cut
	}
	return positions, nil
}

// awaitCheckpoint polls the synchronizer at sched's cadence until id is
// no longer outstanding-but-incomplete, then clears the FIFO through id
// and returns its merged positions.
func (c *Coordinator) awaitCheckpoint(ctx context.Context, id model.CheckpointID, sched Scheduler) (map[model.Stream]model.StreamCut, error) {
	for {
		s, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if s.ConfigState == model.Deleting {
			// The group is being torn down; don't wait out a checkpoint
			// that may never gain another reporter (scenario S6).
			rgmetrics.IncRejected(c.groupName, rgmetrics.RejectReinitialization)
			return nil, rgerrors.ErrReinitializationRequired
		}
		round, outstanding := s.Checkpoints.Find(id)
		if !outstanding {
			// Another coordinator already cleared it before we observed
			// completion; the caller has no positions to recover.
			rgmetrics.IncRejected(c.groupName, rgmetrics.RejectCleared)
			return nil, rgerrors.ErrCheckpointFailed
		}
		if round.Complete(nil) {
			return c.clearCheckpoint(ctx, id)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sched.After(pollInterval):
		}
	}
}

func (c *Coordinator) clearCheckpoint(ctx context.Context, id model.CheckpointID) (map[model.Stream]model.StreamCut, error) {
	var positions map[model.Stream]model.StreamCut
	_, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		round, ok := s.Checkpoints.Find(id)
		if !ok {
			return nil, rgerrors.ErrCheckpointFailed
		}
		merged := round.MergedPositions(nil)
		byStream := make(map[model.Stream]model.StreamCut)
		for seg, off := range merged {
			if byStream[seg.Stream] == nil {
				byStream[seg.Stream] = model.StreamCut{}
			}
			byStream[seg.Stream][seg] = off
		}
		positions = byStream
		return state.ClearCheckpointsBefore{ID: id}, nil
	})
	if err != nil {
		if err == checkpoint.ErrCheckpointFailed {
			return nil, rgerrors.ErrCheckpointFailed
		}
		return nil, err
	}
	return positions, nil
}
