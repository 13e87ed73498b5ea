package subscriber

import (
	"context"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/anirudhkovuru/pravega/controller/controllerfake"
	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxElapsedTime = 200 * time.Millisecond
	return b
}

func TestInitSkipsNoneRetention(t *testing.T) {
	ctx := context.Background()
	client := controllerfake.New()
	m := New("group1", "seg-1", client)

	stream := model.Stream{Scope: "s", Name: "a"}
	cfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{stream: {}},
		RetentionPolicy:    model.RetentionNone,
	}
	require.NoError(t, m.Init(ctx, cfg, 0))

	_, ok := client.Subscription(stream, m.subscriberID())
	assert.False(t, ok)
}

func TestInitRegistersPinningStreams(t *testing.T) {
	ctx := context.Background()
	client := controllerfake.New()
	m := New("group1", "seg-1", client)

	stream := model.Stream{Scope: "s", Name: "a"}
	cfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{stream: {}},
		RetentionPolicy:    model.RetentionManualReleaseAtUserStreamCut,
	}
	require.NoError(t, m.Init(ctx, cfg, 3))

	sub, ok := client.Subscription(stream, m.subscriberID())
	require.True(t, ok)
	assert.Equal(t, uint64(3), sub.Generation)
}

func TestReconcileAddsAndRemoves(t *testing.T) {
	ctx := context.Background()
	client := controllerfake.New()
	m := New("group1", "seg-1", client)

	oldStream := model.Stream{Scope: "s", Name: "old"}
	newStream := model.Stream{Scope: "s", Name: "new"}

	oldCfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{oldStream: {}},
		RetentionPolicy:    model.RetentionAutomaticReleaseAtLastCheckpoint,
	}
	require.NoError(t, m.Init(ctx, oldCfg, 0))

	newCfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{newStream: {}},
		RetentionPolicy:    model.RetentionAutomaticReleaseAtLastCheckpoint,
	}
	require.NoError(t, m.Reconcile(ctx, oldCfg, newCfg, 1))

	_, stillThere := client.Subscription(oldStream, m.subscriberID())
	assert.True(t, stillThere) // deleteSubscriber only marks Deleted, record persists for assertions

	newSub, ok := client.Subscription(newStream, m.subscriberID())
	require.True(t, ok)
	assert.Equal(t, uint64(1), newSub.Generation)
}

// Init retries a transient addSubscriber failure rather than failing
// the whole call outright (spec.md §7).
func TestInitRetriesTransientAddSubscriberFailure(t *testing.T) {
	ctx := context.Background()
	client := controllerfake.New()
	m := New("group1", "seg-1", client, WithUpstreamBackoff(fastBackoff))

	stream := model.Stream{Scope: "s", Name: "a"}
	client.FlakyCalls["AddSubscriber|"+stream.String()] = 2

	cfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{stream: {}},
		RetentionPolicy:    model.RetentionManualReleaseAtUserStreamCut,
	}
	require.NoError(t, m.Init(ctx, cfg, 1))

	sub, ok := client.Subscription(stream, m.subscriberID())
	require.True(t, ok)
	assert.Equal(t, uint64(1), sub.Generation)
}

// A non-retryable failure (not wrapped in rgerrors.RetryableUpstream)
// fails Init on the first attempt.
func TestInitDoesNotRetryNonRetryableFailure(t *testing.T) {
	ctx := context.Background()
	client := controllerfake.New()
	m := New("group1", "seg-1", client, WithUpstreamBackoff(fastBackoff))

	stream := model.Stream{Scope: "s", Name: "a"}
	client.FailCalls["AddSubscriber|"+stream.String()] = rgerrors.ErrInvalidStream

	cfg := model.ReaderGroupConfig{
		StartingStreamCuts: map[model.Stream]model.StreamCut{stream: {}},
		RetentionPolicy:    model.RetentionManualReleaseAtUserStreamCut,
	}
	err := m.Init(ctx, cfg, 1)
	assert.ErrorIs(t, err, rgerrors.ErrInvalidStream)

	_, ok := client.Subscription(stream, m.subscriberID())
	assert.False(t, ok)
}
