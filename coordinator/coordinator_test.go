package coordinator

import (
	"context"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhkovuru/pravega/controller"
	"github.com/anirudhkovuru/pravega/controller/controllerfake"
	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgerrors"
	"github.com/anirudhkovuru/pravega/state"
	"github.com/anirudhkovuru/pravega/synchronizer/syncmem"
)

const (
	defaultWait = time.Second
	defaultTick = time.Millisecond
)

func fastBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxElapsedTime = 200 * time.Millisecond
	return b
}

func testStream() model.Stream { return model.Stream{Scope: "s", Name: "a"} }

func testConfig(max uint32) model.ReaderGroupConfig {
	stream := testStream()
	seg0 := model.Segment{Stream: stream, SegmentID: 0}
	return model.ReaderGroupConfig{
		StartingStreamCuts:              map[model.Stream]model.StreamCut{stream: {seg0: 0}},
		RetentionPolicy:                 model.RetentionNone,
		MaxOutstandingCheckpointRequest: max,
	}
}

func newTestCoordinator(t *testing.T, max uint32) (*Coordinator, *controllerfake.Client) {
	t.Helper()
	client := controllerfake.New()
	c := New("group1", "seg-1", syncmem.New(), client)
	require.NoError(t, c.CreateState(context.Background(), testConfig(max)))
	return c, client
}

func onlineReaders(t *testing.T, c *Coordinator, readers ...model.ReaderID) {
	t.Helper()
	for _, r := range readers {
		require.NoError(t, c.ReaderOnline(context.Background(), r))
	}
}

// createCheckpoint admits id directly, bypassing InitiateCheckpoint's
// poll loop, for tests that only need a checkpoint to be outstanding.
func createCheckpoint(t *testing.T, c *Coordinator, id model.CheckpointID) {
	t.Helper()
	_, err := c.optimisticUpdate(context.Background(), func(s *state.State) (state.Update, error) {
		return state.CreateCheckpoint{ID: id}, nil
	})
	require.NoError(t, err)
}

// reportPositions records reader's positions against checkpoint id.
func (c *Coordinator) reportPositions(ctx context.Context, id model.CheckpointID, reader model.ReaderID, positions map[model.Segment]int64) error {
	_, err := c.optimisticUpdate(ctx, func(s *state.State) (state.Update, error) {
		return state.CheckpointPositions{ID: id, Reader: reader, Positions: positions}, nil
	})
	return err
}

func TestDoInitTransitionsToReady(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)
	s, err := c.fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Ready, s.ConfigState)
}

// S2: checkpoint admission is capped at the configured max.
func TestInitiateCheckpointRespectsMaxOutstanding(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, 1)
	onlineReaders(t, c, "r1")

	// Saturate the cap directly so InitiateCheckpoint's own admission
	// attempt is guaranteed to be rejected.
	createCheckpoint(t, c, "blocker")

	_, err := c.InitiateCheckpoint(ctx, "c1", immediateScheduler{})
	assert.ErrorIs(t, err, rgerrors.ErrMaxCheckpointsExceeded)
}

// S4: two concurrent resets race on the generation fence; exactly one
// ReaderGroupStateResetStart wins, and both callers converge on the same
// newConfig via doReinit.
func TestResetReaderGroupRaceConvergesOnOneWinner(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, 2)

	newCfg := testConfig(3)
	newCfg.MaxOutstandingCheckpointRequest = 5

	errs := make(chan error, 2)
	go func() { errs <- c.ResetReaderGroup(ctx, newCfg) }()
	go func() { errs <- c.ResetReaderGroup(ctx, newCfg) }()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	s, err := c.fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Ready, s.ConfigState)
	assert.Equal(t, uint32(5), s.Config.MaxOutstandingCheckpointRequest)
	assert.Equal(t, uint64(1), s.Generation)
}

// S5: a reader going offline mid-checkpoint is substituted with its last
// position rather than blocking completion.
func TestCheckpointCompletesWhenReaderGoesOfflineMidRound(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, 2)
	onlineReaders(t, c, "r1", "r2", "r3")

	stream := testStream()
	seg0 := model.Segment{Stream: stream, SegmentID: 0}

	done := make(chan struct{})
	go func() {
		_, _ = c.InitiateCheckpoint(ctx, "c", immediateScheduler{})
		close(done)
	}()

	// Give the checkpoint a moment to be admitted, then have r1/r2 report
	// and r3 go offline before reporting.
	require.Eventually(t, func() bool {
		s, err := c.fetch(ctx)
		require.NoError(t, err)
		_, ok := s.Checkpoints.Find("c")
		return ok
	}, defaultWait, defaultTick)

	require.NoError(t, c.reportPositions(ctx, "c", "r1", map[model.Segment]int64{seg0: 5}))
	require.NoError(t, c.reportPositions(ctx, "c", "r2", map[model.Segment]int64{seg0: 6}))
	require.NoError(t, c.ReaderOffline(ctx, "r3", model.Position{
		model.SegmentWithRange{Segment: seg0}: 7,
	}))

	<-done

	s, err := c.fetch(ctx)
	require.NoError(t, err)
	_, stillOutstanding := s.Checkpoints.Find("c")
	assert.False(t, stillOutstanding)
}

// UnreadBytes sums the bounded distance to a configured ending cut when
// one exists, and falls through to GetSuccessors/GetSegmentLength for
// unbounded streams (spec.md §4.F).
func TestUnreadBytesSumsBoundedAndUnboundedStreams(t *testing.T) {
	ctx := context.Background()

	bounded := model.Stream{Scope: "s", Name: "bounded"}
	unbounded := model.Stream{Scope: "s", Name: "unbounded"}
	boundedSeg := model.Segment{Stream: bounded, SegmentID: 0}
	unboundedSeg := model.Segment{Stream: unbounded, SegmentID: 0}

	cfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{
			bounded:   {boundedSeg: 0},
			unbounded: {unboundedSeg: 0},
		},
		EndingStreamCuts: map[model.Stream]model.StreamCut{
			bounded: {boundedSeg: 100},
		},
		RetentionPolicy:                 model.RetentionNone,
		MaxOutstandingCheckpointRequest: 2,
	}

	client := controllerfake.New()
	c := New("group2", "seg-2", syncmem.New(), client)
	require.NoError(t, c.CreateState(ctx, cfg))

	client.Successors[unbounded] = controller.SuccessorsResult{Segments: []model.Segment{unboundedSeg}}
	client.SegmentLengths[unboundedSeg] = 30

	total, err := c.UnreadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(130), total)
}

// A run-to-end (-1) ending segment has no fixed offset to subtract
// against; UnreadBytes must fetch its live length instead of treating
// the sentinel as a literal byte count.
func TestUnreadBytesTreatsRunToEndSegmentAsUnbounded(t *testing.T) {
	ctx := context.Background()

	stream := model.Stream{Scope: "s", Name: "runtoend"}
	seg := model.Segment{Stream: stream, SegmentID: 0}

	cfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{
			stream: {seg: 0},
		},
		EndingStreamCuts: map[model.Stream]model.StreamCut{
			stream: {seg: model.EndOfSegmentOffset},
		},
		RetentionPolicy:                 model.RetentionNone,
		MaxOutstandingCheckpointRequest: 2,
	}

	client := controllerfake.New()
	c := New("group3", "seg-3", syncmem.New(), client)
	require.NoError(t, c.CreateState(ctx, cfg))

	client.SegmentLengths[seg] = 75

	total, err := c.UnreadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(75), total)
}

// UnreadBytes retries a transient GetSegmentLength failure rather than
// failing the whole computation outright (spec.md §7).
func TestUnreadBytesRetriesTransientUpstreamFailure(t *testing.T) {
	ctx := context.Background()

	stream := model.Stream{Scope: "s", Name: "unbounded"}
	seg := model.Segment{Stream: stream, SegmentID: 0}

	cfg := model.ReaderGroupConfig{
		StartingStreamCuts:              map[model.Stream]model.StreamCut{stream: {seg: 0}},
		RetentionPolicy:                 model.RetentionNone,
		MaxOutstandingCheckpointRequest: 2,
	}

	client := controllerfake.New()
	c := New("group4", "seg-4", syncmem.New(), client, WithUpstreamBackoff(fastBackoff))
	require.NoError(t, c.CreateState(ctx, cfg))

	client.Successors[stream] = controller.SuccessorsResult{Segments: []model.Segment{seg}}
	client.SegmentLengths[seg] = 42
	client.FlakyCalls["GetSegmentLength|"+stream.String()] = 2

	total, err := c.UnreadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)
}

// A non-retryable upstream failure fails UnreadBytes on the first
// attempt, without waiting out the retry ceiling.
func TestUnreadBytesDoesNotRetryNonRetryableFailure(t *testing.T) {
	ctx := context.Background()

	stream := model.Stream{Scope: "s", Name: "unbounded"}
	seg := model.Segment{Stream: stream, SegmentID: 0}

	cfg := model.ReaderGroupConfig{
		StartingStreamCuts:              map[model.Stream]model.StreamCut{stream: {seg: 0}},
		RetentionPolicy:                 model.RetentionNone,
		MaxOutstandingCheckpointRequest: 2,
	}

	client := controllerfake.New()
	c := New("group5", "seg-5", syncmem.New(), client, WithUpstreamBackoff(fastBackoff))
	require.NoError(t, c.CreateState(ctx, cfg))

	client.Successors[stream] = controller.SuccessorsResult{Segments: []model.Segment{seg}}
	client.FailCalls["GetSegmentLength|"+stream.String()] = rgerrors.ErrInvalidStream

	_, err := c.UnreadBytes(ctx)
	assert.ErrorIs(t, err, rgerrors.ErrInvalidStream)
}

// S6: deleting the group while a checkpoint is outstanding surfaces
// ReinitializationRequired to the waiter instead of hanging.
func TestInitiateCheckpointSurfacesReinitializationOnDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, 2)
	onlineReaders(t, c, "r1")

	done := make(chan error, 1)
	go func() {
		_, err := c.InitiateCheckpoint(ctx, "c", immediateScheduler{})
		done <- err
	}()

	require.Eventually(t, func() bool {
		s, err := c.fetch(ctx)
		require.NoError(t, err)
		_, ok := s.Checkpoints.Find("c")
		return ok
	}, defaultWait, defaultTick)

	require.NoError(t, c.DeleteState(ctx))

	err := <-done
	assert.True(t, err == rgerrors.ErrReinitializationRequired || err == rgerrors.ErrCheckpointFailed)
}
