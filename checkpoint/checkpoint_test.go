package checkpoint

import (
	"testing"

	"github.com/anirudhkovuru/pravega/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlineSet(ids ...model.ReaderID) map[model.ReaderID]bool {
	m := make(map[model.ReaderID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestCreateRespectsMaxOutstanding(t *testing.T) {
	s := NewState()
	online := onlineSet("r1")

	s, err := s.Create("c1", online, 2)
	require.NoError(t, err)
	s, err = s.Create("c2", online, 2)
	require.NoError(t, err)

	_, err = s.Create("c3", online, 2)
	assert.ErrorIs(t, err, ErrMaxOutstanding)
}

func TestSilentIDDetection(t *testing.T) {
	id, err := NewSilentID()
	require.NoError(t, err)
	assert.True(t, IsSilent(id))
	assert.False(t, IsSilent(model.CheckpointID("c1")))
}

func TestReportThenClearProducesPositions(t *testing.T) {
	stream := model.Stream{Scope: "s", Name: "a"}
	seg0 := model.Segment{Stream: stream, SegmentID: 0}

	s := NewState()
	s, err := s.Create("c1", onlineSet("r1", "r2"), 5)
	require.NoError(t, err)

	s = s.Report("c1", "r1", map[model.Segment]int64{seg0: 10})
	s = s.Report("c1", "r2", map[model.Segment]int64{seg0: 10})

	round, ok := s.Find("c1")
	require.True(t, ok)
	assert.True(t, round.Complete(nil))

	next, positions, err := s.ClearBefore("c1", func(seg model.Segment) model.Stream { return seg.Stream })
	require.NoError(t, err)
	assert.Empty(t, next.Outstanding)
	assert.Equal(t, int64(10), positions[stream][seg0])
	require.NotNil(t, next.LastCompleted)
	assert.Equal(t, model.CheckpointID("c1"), next.LastCompleted.ID)
}

func TestOfflineReaderSubstitutedIntoCheckpoint(t *testing.T) {
	stream := model.Stream{Scope: "s", Name: "a"}
	seg0 := model.Segment{Stream: stream, SegmentID: 0}
	seg1 := model.Segment{Stream: stream, SegmentID: 1}
	seg2 := model.Segment{Stream: stream, SegmentID: 2}

	s := NewState()
	s, err := s.Create("c1", onlineSet("r1", "r2", "r3"), 5)
	require.NoError(t, err)

	s = s.Report("c1", "r1", map[model.Segment]int64{seg1: 5})
	s = s.Report("c1", "r2", map[model.Segment]int64{seg2: 6})
	s = s.SubstituteOffline("r3", map[model.Segment]int64{seg0: 7})

	round, ok := s.Find("c1")
	require.True(t, ok)
	assert.True(t, round.Complete(nil))

	_, positions, err := s.ClearBefore("c1", func(seg model.Segment) model.Stream { return seg.Stream })
	require.NoError(t, err)
	assert.Equal(t, int64(7), positions[stream][seg0])
}

func TestClearBeforeUnknownIDFails(t *testing.T) {
	s := NewState()
	_, _, err := s.ClearBefore("missing", func(seg model.Segment) model.Stream { return seg.Stream })
	assert.ErrorIs(t, err, ErrCheckpointFailed)
}

func TestClearBeforeFIFOOrderAdvancesLastCompleted(t *testing.T) {
	s := NewState()
	s, err := s.Create("c1", onlineSet("r1"), 5)
	require.NoError(t, err)
	s, err = s.Create("c2", onlineSet("r1"), 5)
	require.NoError(t, err)

	s = s.Report("c1", "r1", map[model.Segment]int64{})
	s = s.Report("c2", "r1", map[model.Segment]int64{})

	next, _, err := s.ClearBefore("c2", func(seg model.Segment) model.Stream { return seg.Stream })
	require.NoError(t, err)
	assert.Empty(t, next.Outstanding)
	assert.Equal(t, model.CheckpointID("c2"), next.LastCompleted.ID)
}
