package state

import (
	"sort"

	"github.com/anirudhkovuru/pravega/checkpoint"
	"github.com/anirudhkovuru/pravega/model"
)

// Update is the closed set of mutation operations spec.md §4.A defines.
// Apply is pure: given the current snapshot it returns either a
// replacement snapshot or an error; it never performs I/O.
type Update interface {
	Apply(s *State) (*State, error)
}

// ReaderGroupStateInit is valid only as the very first update applied to
// a group.
type ReaderGroupStateInit struct {
	Config          model.ReaderGroupConfig
	InitialSegments map[model.SegmentWithRange]int64
	EndSegments     map[model.Segment]int64
}

func (u ReaderGroupStateInit) Apply(s *State) (*State, error) {
	if s != nil {
		return nil, ErrAlreadyInitialized
	}
	next := &State{
		Config:             u.Config,
		ConfigState:        model.Initializing,
		Generation:         0,
		OnlineReaders:      map[model.ReaderID]bool{},
		AssignedSegments:   map[model.ReaderID]map[model.SegmentWithRange]int64{},
		UnassignedSegments: map[model.SegmentWithRange]int64{},
		EndSegments:        map[model.Segment]int64{},
		LastReadPositions:  map[model.Stream]map[model.SegmentWithRange]int64{},
		Checkpoints:        checkpoint.NewState(),
		DistanceToTail:     map[model.ReaderID]int64{},
	}
	for seg, off := range u.InitialSegments {
		next.UnassignedSegments[seg] = off
	}
	for seg, off := range u.EndSegments {
		next.EndSegments[seg] = off
	}
	return next, nil
}

// allowedTransitions enumerates the ConfigState edges spec.md §4.A
// permits, keyed by (from, to).
var allowedTransitions = map[[2]model.ConfigState]bool{
	{model.Initializing, model.Ready}:        true,
	{model.Ready, model.Reinitializing}:      true,
	{model.Ready, model.Deleting}:            true,
	{model.Reinitializing, model.Ready}:      true,
	{model.Initializing, model.Deleting}:     true,
	{model.Reinitializing, model.Deleting}:   true,
}

// ChangeConfigState transitions the lifecycle label, guarded by the
// generation the caller observed when it decided to make this
// transition.
type ChangeConfigState struct {
	Target             model.ConfigState
	ExpectedGeneration uint64
	// NewConfig must be set when Target == Reinitializing.
	NewConfig *model.ReaderGroupConfig
}

func (u ChangeConfigState) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	if s.Generation != u.ExpectedGeneration {
		return s, ErrGenerationMismatch
	}
	if !allowedTransitions[[2]model.ConfigState{s.ConfigState, u.Target}] {
		return nil, ErrIllegalTransition
	}
	next := s.Clone()
	next.ConfigState = u.Target
	if u.Target == model.Reinitializing {
		if u.NewConfig == nil {
			return nil, ErrIllegalTransition
		}
		nc := *u.NewConfig
		next.NewConfig = &nc
		next.Generation++
	}
	if s.ConfigState == model.Reinitializing && u.Target == model.Ready {
		next.NewConfig = nil
	}
	return next, nil
}

// ReaderGroupStateResetStart moves READY -> REINITIALIZING, stashing the
// requested new configuration and bumping the generation fence so
// racing resets can only have one winner (scenario S4).
type ReaderGroupStateResetStart struct {
	NewConfig     model.ReaderGroupConfig
	NewGeneration uint64
}

func (u ReaderGroupStateResetStart) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	if s.ConfigState != model.Ready {
		return nil, ErrIllegalTransition
	}
	if u.NewGeneration != s.Generation+1 {
		return s, ErrGenerationMismatch
	}
	next := s.Clone()
	next.ConfigState = model.Reinitializing
	nc := u.NewConfig
	next.NewConfig = &nc
	next.Generation = u.NewGeneration
	return next, nil
}

// ReaderGroupStateResetComplete moves REINITIALIZING -> READY, replacing
// Config with NewConfig and re-seeding the segment partition so every
// new segment starts unassigned.
type ReaderGroupStateResetComplete struct {
	Segments    map[model.SegmentWithRange]int64
	EndSegments map[model.Segment]int64
}

func (u ReaderGroupStateResetComplete) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	if s.ConfigState != model.Reinitializing || s.NewConfig == nil {
		return nil, ErrIllegalTransition
	}
	next := s.Clone()
	next.Config = *s.NewConfig
	next.NewConfig = nil
	next.ConfigState = model.Ready
	next.AssignedSegments = map[model.ReaderID]map[model.SegmentWithRange]int64{}
	for reader := range next.OnlineReaders {
		next.AssignedSegments[reader] = map[model.SegmentWithRange]int64{}
	}
	next.UnassignedSegments = map[model.SegmentWithRange]int64{}
	for seg, off := range u.Segments {
		next.UnassignedSegments[seg] = off
	}
	next.EndSegments = map[model.Segment]int64{}
	for seg, off := range u.EndSegments {
		next.EndSegments[seg] = off
	}
	next.LastReadPositions = map[model.Stream]map[model.SegmentWithRange]int64{}
	next.Checkpoints = checkpoint.NewState()
	return next, nil
}

// AcquireSegment moves seg from UnassignedSegments into reader's
// assignment set (pull-based acquisition, spec.md §4.E).
type AcquireSegment struct {
	Reader  model.ReaderID
	Segment model.SegmentWithRange
}

func (u AcquireSegment) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	if !s.OnlineReaders[u.Reader] {
		return nil, ErrReaderNotOnline
	}
	off, ok := s.UnassignedSegments[u.Segment]
	if !ok {
		return nil, ErrSegmentNotInExpectedPartition
	}
	next := s.Clone()
	delete(next.UnassignedSegments, u.Segment)
	if next.AssignedSegments[u.Reader] == nil {
		next.AssignedSegments[u.Reader] = map[model.SegmentWithRange]int64{}
	}
	next.AssignedSegments[u.Reader][u.Segment] = off
	return next, nil
}

// ReleaseSegment moves seg from reader's assignment back into
// UnassignedSegments at the reported offset.
type ReleaseSegment struct {
	Reader  model.ReaderID
	Segment model.SegmentWithRange
	Offset  int64
}

func (u ReleaseSegment) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	owned := s.AssignedSegments[u.Reader]
	if owned == nil {
		return nil, ErrSegmentNotInExpectedPartition
	}
	if _, ok := owned[u.Segment]; !ok {
		return nil, ErrSegmentNotInExpectedPartition
	}
	next := s.Clone()
	delete(next.AssignedSegments[u.Reader], u.Segment)
	next.UnassignedSegments[u.Segment] = u.Offset
	return next, nil
}

// ReaderOffline removes reader from OnlineReaders and returns its
// segments to UnassignedSegments, at lastPosition when provided or at
// the last reported offsets otherwise.
type ReaderOffline struct {
	Reader       model.ReaderID
	LastPosition model.Position // nil to fall back to LastReadPositions
}

func (u ReaderOffline) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	next := s.Clone()
	owned := next.AssignedSegments[u.Reader]
	lastPos := u.LastPosition
	if lastPos == nil {
		lastPos = model.Position{}
		for seg := range owned {
			if off, ok := next.LastReadPositions[seg.Segment.Stream][seg]; ok {
				lastPos[seg] = off
			}
		}
	}
	for seg, off := range owned {
		if v, ok := lastPos[seg]; ok {
			off = v
		}
		next.UnassignedSegments[seg] = off
	}
	delete(next.AssignedSegments, u.Reader)
	delete(next.OnlineReaders, u.Reader)
	next.Checkpoints = next.Checkpoints.SubstituteOffline(u.Reader, offlinePositionsBySegment(owned, lastPos))
	return next, nil
}

func offlinePositionsBySegment(owned map[model.SegmentWithRange]int64, lastPosition model.Position) map[model.Segment]int64 {
	out := make(map[model.Segment]int64, len(owned))
	for seg, off := range owned {
		if lastPosition != nil {
			if v, ok := lastPosition[seg]; ok {
				off = v
			}
		}
		out[seg.Segment] = off
	}
	return out
}

// CreateCheckpoint admits a new checkpoint round, snapshotting the
// currently online readers as the pending set. Rejected (returns
// checkpoint.ErrMaxOutstanding) if the group is already at its
// configured cap — admission is atomic with this transformer.
type CreateCheckpoint struct {
	ID model.CheckpointID
}

func (u CreateCheckpoint) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	newCheckpoints, err := s.Checkpoints.Create(u.ID, s.OnlineReaders, s.Config.MaxOutstandingCheckpointRequest)
	if err != nil {
		return nil, err
	}
	next := s.Clone()
	next.Checkpoints = newCheckpoints
	return next, nil
}

// CheckpointPositions records reader's reported segment offsets against
// an outstanding checkpoint.
type CheckpointPositions struct {
	ID        model.CheckpointID
	Reader    model.ReaderID
	Positions map[model.Segment]int64
}

func (u CheckpointPositions) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	next := s.Clone()
	next.Checkpoints = next.Checkpoints.Report(u.ID, u.Reader, u.Positions)
	return next, nil
}

// ClearCheckpointsBefore pops the FIFO up to and including id, advancing
// LastCompleted. The merged positions for id, if it completed, are
// stashed on the returned state's Checkpoints.LastCompleted; the
// coordinator computes its own copy of them inside its transformer.
type ClearCheckpointsBefore struct {
	ID model.CheckpointID
}

func (u ClearCheckpointsBefore) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	newCheckpoints, _, err := s.Checkpoints.ClearBefore(u.ID, func(seg model.Segment) model.Stream { return seg.Stream })
	if err != nil {
		return nil, err
	}
	next := s.Clone()
	next.Checkpoints = newCheckpoints
	return next, nil
}

// ReaderOnline marks reader online with an empty assignment set,
// preparing it to pull segments from UnassignedSegments.
type ReaderOnline struct {
	Reader model.ReaderID
}

func (u ReaderOnline) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	next := s.Clone()
	next.OnlineReaders[u.Reader] = true
	if next.AssignedSegments[u.Reader] == nil {
		next.AssignedSegments[u.Reader] = map[model.SegmentWithRange]int64{}
	}
	return next, nil
}

// UpdateLastReadPositions records reader's most recent reported
// position for a stream, used as the ReaderOffline fallback and for
// generateStreamCuts gap-filling (spec.md §4.D).
type UpdateLastReadPositions struct {
	Stream    model.Stream
	Positions map[model.SegmentWithRange]int64
}

func (u UpdateLastReadPositions) Apply(s *State) (*State, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	next := s.Clone()
	m := make(map[model.SegmentWithRange]int64, len(u.Positions))
	for seg, off := range u.Positions {
		m[seg] = off
	}
	next.LastReadPositions[u.Stream] = m
	return next, nil
}

// SortedUnassignedSegments returns UnassignedSegments ordered by
// ascending SegmentID, the deterministic hand-out order spec.md §4.E
// requires (segmentIds are unique so ties never occur).
func SortedUnassignedSegments(s *State) []model.SegmentWithRange {
	out := make([]model.SegmentWithRange, 0, len(s.UnassignedSegments))
	for seg := range s.UnassignedSegments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Segment.SegmentID < out[j].Segment.SegmentID
	})
	return out
}
