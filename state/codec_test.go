package state

import (
	"testing"

	"github.com/anirudhkovuru/pravega/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryCodecRoundTrip(t *testing.T) {
	s := initState(t, 2)
	s, err := ChangeConfigState{Target: model.Ready, ExpectedGeneration: 0}.Apply(s)
	require.NoError(t, err)
	s, err = ReaderOnline{Reader: "r1"}.Apply(s)
	require.NoError(t, err)
	s, err = AcquireSegment{Reader: "r1", Segment: seg(0)}.Apply(s)
	require.NoError(t, err)
	s, err = CreateCheckpoint{ID: "c1"}.Apply(s)
	require.NoError(t, err)
	s, err = CheckpointPositions{ID: "c1", Reader: "r1", Positions: map[model.Segment]int64{seg(0).Segment: 12}}.Apply(s)
	require.NoError(t, err)

	var codec BinaryCodec
	raw, err := codec.Marshal(s)
	require.NoError(t, err)

	decoded, err := codec.Unmarshal(raw)
	require.NoError(t, err)

	assert.Equal(t, s.ConfigState, decoded.ConfigState)
	assert.Equal(t, s.Generation, decoded.Generation)
	assert.Equal(t, s.Config, decoded.Config)
	assert.Equal(t, s.OnlineReaders, decoded.OnlineReaders)
	assert.Equal(t, s.AssignedSegments, decoded.AssignedSegments)
	assert.Equal(t, s.UnassignedSegments, decoded.UnassignedSegments)
	require.Len(t, decoded.Checkpoints.Outstanding, 1)
	assert.Equal(t, s.Checkpoints.Outstanding[0].Reported, decoded.Checkpoints.Outstanding[0].Reported)
}

func TestBinaryCodecRejectsFutureRevision(t *testing.T) {
	env := model.EncodeEnvelope(model.Envelope{WriteVersion: model.WriteVersion, Revision: model.WriteVersion + 1, Payload: []byte{1}})
	var codec BinaryCodec
	_, err := codec.Unmarshal(env)
	assert.ErrorIs(t, err, model.ErrUnsupportedRevision)
}
