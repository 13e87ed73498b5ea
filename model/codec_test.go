package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCutRoundTrip(t *testing.T) {
	sc := StreamCut{
		{Stream: Stream{Scope: "s", Name: "a"}, SegmentID: 0}: 30,
		{Stream: Stream{Scope: "s", Name: "a"}, SegmentID: 1}: UnboundedOffset,
	}

	encoded := MarshalStreamCut(sc)
	decoded, err := UnmarshalStreamCut(encoded)
	require.NoError(t, err)
	assert.Equal(t, sc, decoded)
}

func TestEnvelopeRejectsFutureRevision(t *testing.T) {
	raw := EncodeEnvelope(Envelope{WriteVersion: WriteVersion, Revision: WriteVersion + 1, Payload: []byte("x")})
	_, err := DecodeEnvelope(raw)
	assert.ErrorIs(t, err, ErrUnsupportedRevision)
}

func TestEnvelopeAcceptsCurrentRevision(t *testing.T) {
	raw := EncodeEnvelope(Envelope{WriteVersion: WriteVersion, Revision: WriteVersion, Payload: []byte("payload")})
	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), env.Payload)
}

func TestSegmentRoutingKeyStable(t *testing.T) {
	seg := Segment{Stream: Stream{Scope: "scope", Name: "stream"}, SegmentID: 7}
	assert.Equal(t, seg.RoutingKey(), seg.RoutingKey())
}
