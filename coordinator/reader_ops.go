package coordinator

import (
	"context"
	"sort"

	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/state"
)

// ReaderOffline marks reader offline, returning its segments to
// unassignedSegments and substituting lastPosition (or the last
// reported position, if lastPosition is nil) into any checkpoint that
// still lists reader as pending (spec.md §4.E, scenario S5).
func (c *Coordinator) ReaderOffline(ctx context.Context, reader model.ReaderID, lastPosition model.Position) error {
	_, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		if !s.OnlineReaders[reader] {
			return nil, nil
		}
		return state.ReaderOffline{Reader: reader, LastPosition: lastPosition}, nil
	})
	return err
}

// ReaderOnline marks reader online with an empty assignment set, ready
// to pull from unassignedSegments.
func (c *Coordinator) ReaderOnline(ctx context.Context, reader model.ReaderID) error {
	_, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		return state.ReaderOnline{Reader: reader}, nil
	})
	return err
}

// AcquireSegment pulls seg from unassignedSegments into reader's
// assignment set.
func (c *Coordinator) AcquireSegment(ctx context.Context, reader model.ReaderID, seg model.SegmentWithRange) error {
	_, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		return state.AcquireSegment{Reader: reader, Segment: seg}, nil
	})
	return err
}

// ReleaseSegment returns seg from reader's assignment set to
// unassignedSegments at offset.
func (c *Coordinator) ReleaseSegment(ctx context.Context, reader model.ReaderID, seg model.SegmentWithRange, offset int64) error {
	_, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		return state.ReleaseSegment{Reader: reader, Segment: seg, Offset: offset}, nil
	})
	return err
}

// UpdateLastReadPositions records reader's most recently reported
// per-segment offsets for stream, independent of any checkpoint round.
// GetStreamCuts falls back to this when no checkpoint has completed
// yet, and ReaderOffline falls back to it when a reader disconnects
// without a caller-supplied lastPosition (spec.md §4.D).
func (c *Coordinator) UpdateLastReadPositions(ctx context.Context, reader model.ReaderID, stream model.Stream, positions map[model.SegmentWithRange]int64) error {
	_, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		if !s.OnlineReaders[reader] {
			return nil, nil
		}
		return state.UpdateLastReadPositions{Stream: stream, Positions: positions}, nil
	})
	return err
}

// GetOnlineReaders returns the currently online reader ids, sorted for
// deterministic output.
func (c *Coordinator) GetOnlineReaders(ctx context.Context) ([]model.ReaderID, error) {
	s, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ReaderID, 0, len(s.OnlineReaders))
	for r := range s.OnlineReaders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// GetStreamNames returns the streams this group's current config reads
// from, sorted for deterministic output.
func (c *Coordinator) GetStreamNames(ctx context.Context) ([]model.Stream, error) {
	s, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := s.Config.StartingStreams()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// GetReaderSegmentDistribution returns, per online reader, the count of
// segments it currently owns — the shape getReaderSegmentDistribution
// exposes for external load-balance monitoring (spec.md §6.2).
func (c *Coordinator) GetReaderSegmentDistribution(ctx context.Context) (map[model.ReaderID]int, error) {
	s, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[model.ReaderID]int, len(s.OnlineReaders))
	for reader := range s.OnlineReaders {
		out[reader] = len(s.AssignedSegments[reader])
	}
	return out, nil
}
