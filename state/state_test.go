package state

import (
	"testing"

	"github.com/anirudhkovuru/pravega/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStream() model.Stream { return model.Stream{Scope: "scope", Name: "stream"} }

func seg(id uint64) model.SegmentWithRange {
	return model.SegmentWithRange{Segment: model.Segment{Stream: testStream(), SegmentID: id}}
}

func initState(t *testing.T, maxOutstanding uint32) *State {
	t.Helper()
	cfg := model.ReaderGroupConfig{
		StartingStreamCuts:              map[model.Stream]model.StreamCut{testStream(): {}},
		MaxOutstandingCheckpointRequest: maxOutstanding,
	}
	s, err := ReaderGroupStateInit{
		Config:          cfg,
		InitialSegments: map[model.SegmentWithRange]int64{seg(0): 0, seg(1): 0, seg(2): 0},
	}.Apply(nil)
	require.NoError(t, err)
	return s
}

func TestInitThenReadyTransition(t *testing.T) {
	s := initState(t, 2)
	require.NoError(t, s.CheckInvariants())

	next, err := ChangeConfigState{Target: model.Ready, ExpectedGeneration: 0}.Apply(s)
	require.NoError(t, err)
	assert.Equal(t, model.Ready, next.ConfigState)
	require.NoError(t, next.CheckInvariants())
}

func TestSecondInitRejected(t *testing.T) {
	s := initState(t, 2)
	_, err := ReaderGroupStateInit{}.Apply(s)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestAcquireAndReleaseSegment(t *testing.T) {
	s := initState(t, 2)
	s, err := ReaderOnline{Reader: "r1"}.Apply(s)
	require.NoError(t, err)

	s, err = AcquireSegment{Reader: "r1", Segment: seg(0)}.Apply(s)
	require.NoError(t, err)
	assert.Contains(t, s.AssignedSegments["r1"], seg(0))
	assert.NotContains(t, s.UnassignedSegments, seg(0))
	require.NoError(t, s.CheckInvariants())

	s, err = ReleaseSegment{Reader: "r1", Segment: seg(0), Offset: 42}.Apply(s)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.UnassignedSegments[seg(0)])
	require.NoError(t, s.CheckInvariants())
}

func TestAcquireRejectsSegmentNotUnassigned(t *testing.T) {
	s := initState(t, 2)
	s, err := ReaderOnline{Reader: "r1"}.Apply(s)
	require.NoError(t, err)
	s, err = AcquireSegment{Reader: "r1", Segment: seg(0)}.Apply(s)
	require.NoError(t, err)

	_, err = AcquireSegment{Reader: "r1", Segment: seg(0)}.Apply(s)
	assert.ErrorIs(t, err, ErrSegmentNotInExpectedPartition)
}

func TestReaderOfflineReturnsSegmentsAndSubstitutesCheckpoint(t *testing.T) {
	s := initState(t, 2)
	s, err := ChangeConfigState{Target: model.Ready, ExpectedGeneration: 0}.Apply(s)
	require.NoError(t, err)
	s, err = ReaderOnline{Reader: "r1"}.Apply(s)
	require.NoError(t, err)
	s, err = AcquireSegment{Reader: "r1", Segment: seg(0)}.Apply(s)
	require.NoError(t, err)

	s, err = CreateCheckpoint{ID: "c1"}.Apply(s)
	require.NoError(t, err)

	lastPos := model.Position{seg(0): 99}
	s, err = ReaderOffline{Reader: "r1", LastPosition: lastPos}.Apply(s)
	require.NoError(t, err)

	assert.NotContains(t, s.OnlineReaders, model.ReaderID("r1"))
	assert.Equal(t, int64(99), s.UnassignedSegments[seg(0)])

	round, ok := s.Checkpoints.Find("c1")
	require.True(t, ok)
	assert.True(t, round.Complete(nil))
	require.NoError(t, s.CheckInvariants())
}

// A pending reader that is offline without ever being substituted into
// its round's Reported set violates invariant 5 (spec.md §8); this can
// only happen by mutating OnlineReaders outside ReaderOffline's Apply,
// which is exactly what this test does to prove CheckInvariants
// actually rejects it.
func TestCheckInvariantsRejectsUnaccountedOfflinePendingReader(t *testing.T) {
	s := initState(t, 2)
	s, err := ChangeConfigState{Target: model.Ready, ExpectedGeneration: 0}.Apply(s)
	require.NoError(t, err)
	s, err = ReaderOnline{Reader: "r1"}.Apply(s)
	require.NoError(t, err)
	s, err = CreateCheckpoint{ID: "c1"}.Apply(s)
	require.NoError(t, err)

	delete(s.OnlineReaders, "r1")
	delete(s.AssignedSegments, "r1")

	assert.ErrorIs(t, s.CheckInvariants(), errPendingReaderUnaccounted)
}

func TestResetStartRequiresReady(t *testing.T) {
	s := initState(t, 2)
	newCfg := s.Config
	_, err := ReaderGroupStateResetStart{NewConfig: newCfg, NewGeneration: 1}.Apply(s)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestResetStartFencesOnGeneration(t *testing.T) {
	s := initState(t, 2)
	s, err := ChangeConfigState{Target: model.Ready, ExpectedGeneration: 0}.Apply(s)
	require.NoError(t, err)

	newCfg := s.Config
	newCfg.MaxOutstandingCheckpointRequest = 9
	_, err = ReaderGroupStateResetStart{NewConfig: newCfg, NewGeneration: 5}.Apply(s)
	assert.ErrorIs(t, err, ErrGenerationMismatch)

	next, err := ReaderGroupStateResetStart{NewConfig: newCfg, NewGeneration: s.Generation + 1}.Apply(s)
	require.NoError(t, err)
	assert.Equal(t, model.Reinitializing, next.ConfigState)
	require.NotNil(t, next.NewConfig)
	assert.Equal(t, uint32(9), next.NewConfig.MaxOutstandingCheckpointRequest)
	require.NoError(t, next.CheckInvariants())
}

func TestResetCompleteReseedsSegments(t *testing.T) {
	s := initState(t, 2)
	s, err := ChangeConfigState{Target: model.Ready, ExpectedGeneration: 0}.Apply(s)
	require.NoError(t, err)
	s, err = ReaderOnline{Reader: "r1"}.Apply(s)
	require.NoError(t, err)

	newCfg := s.Config
	s, err = ReaderGroupStateResetStart{NewConfig: newCfg, NewGeneration: s.Generation + 1}.Apply(s)
	require.NoError(t, err)

	s, err = ReaderGroupStateResetComplete{Segments: map[model.SegmentWithRange]int64{seg(9): 0}}.Apply(s)
	require.NoError(t, err)
	assert.Equal(t, model.Ready, s.ConfigState)
	assert.Nil(t, s.NewConfig)
	assert.Contains(t, s.UnassignedSegments, seg(9))
	assert.Empty(t, s.AssignedSegments["r1"])
	require.NoError(t, s.CheckInvariants())
}

func TestSortedUnassignedSegmentsAscending(t *testing.T) {
	s := initState(t, 2)
	ordered := SortedUnassignedSegments(s)
	require.Len(t, ordered, 3)
	assert.Equal(t, uint64(0), ordered[0].Segment.SegmentID)
	assert.Equal(t, uint64(1), ordered[1].Segment.SegmentID)
	assert.Equal(t, uint64(2), ordered[2].Segment.SegmentID)
}

func TestCreateCheckpointRespectsCap(t *testing.T) {
	s := initState(t, 1)
	s, err := CreateCheckpoint{ID: "c1"}.Apply(s)
	require.NoError(t, err)
	_, err = CreateCheckpoint{ID: "c2"}.Apply(s)
	assert.Error(t, err)
}
