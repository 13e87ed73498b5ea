// Package subscriber implements the Subscriber Manager (component E):
// reconciling the set of upstream streams registered as
// retention-pinning subscribers against reader-group config
// transitions. Live registrations are tracked with
// github.com/orcaman/concurrent-map/v2, the same structure
// weed/mq/coordinator.Coordinator.Subscribers uses to track live
// subscriptions, so concurrent doInit/doReinit calls from different
// coordinator instances of the same group never race on a plain map.
package subscriber

import (
	"context"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/anirudhkovuru/pravega/controller"
	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgerrors"
)

// Manager reconciles subscriber registrations for one reader group.
type Manager struct {
	groupName             string
	synchronizerSegmentID string
	client                controller.Client

	// live tracks streams currently registered as subscribers.
	// Reconcile diffs the old and new configs and does not read it.
	live cmap.ConcurrentMap[string, bool]

	// upstreamBackoff builds the retry policy addSubscriber/
	// deleteSubscriber calls run under (spec.md §7's caller-configured
	// ceiling). Called fresh for every retried call, since a
	// backoff.BackOff is single-use.
	upstreamBackoff func() backoff.BackOff
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithUpstreamBackoff overrides the retry policy factory addSubscriber/
// deleteSubscriber calls run under. Defaults to
// rgerrors.DefaultUpstreamBackoff.
func WithUpstreamBackoff(factory func() backoff.BackOff) Option {
	return func(m *Manager) { m.upstreamBackoff = factory }
}

// New returns a Manager for one group, identified by groupName and the
// stable physical id of its backing synchronizer segment (spec.md
// §4.C).
func New(groupName, synchronizerSegmentID string, client controller.Client, opts ...Option) *Manager {
	m := &Manager{
		groupName:             groupName,
		synchronizerSegmentID: synchronizerSegmentID,
		client:                client,
		live:                  cmap.New[bool](),
		upstreamBackoff:       rgerrors.DefaultUpstreamBackoff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// retryUpstream runs fn — an addSubscriber/deleteSubscriber attempt —
// under m.upstreamBackoff, retrying only rgerrors.RetryableUpstream
// failures (spec.md §7).
func (m *Manager) retryUpstream(ctx context.Context, fn func() error) error {
	return rgerrors.Retry(ctx, m.upstreamBackoff(), fn)
}

func (m *Manager) subscriberID() string {
	return controller.SubscriberID(m.groupName, m.synchronizerSegmentID)
}

func pinning(cfg model.ReaderGroupConfig) bool {
	return cfg.RetentionPolicy != model.RetentionNone
}

// Init registers every stream in cfg's starting cuts whose retention
// policy pins upstream retention, at generation gen. Called from
// doInit (spec.md §4.C).
func (m *Manager) Init(ctx context.Context, cfg model.ReaderGroupConfig, gen uint64) error {
	if !pinning(cfg) {
		return nil
	}
	for _, stream := range cfg.StartingStreams() {
		stream := stream
		if err := m.retryUpstream(ctx, func() error {
			return m.client.AddSubscriber(ctx, stream, m.subscriberID(), gen)
		}); err != nil {
			return err
		}
		m.live.Set(stream.String(), true)
		glog.V(1).Infof("subscriber: registered %s on %s at generation %d", m.subscriberID(), stream, gen)
	}
	return nil
}

// Reconcile diffs oldCfg against newCfg under the retention predicate
// and issues addSubscriber/deleteSubscriber calls for the difference,
// at generation gen (the pre-transition generation, per spec.md §4.C's
// generation discipline). Idempotent: safe to call from any coordinator
// that observes the REINITIALIZING transition.
func (m *Manager) Reconcile(ctx context.Context, oldCfg, newCfg model.ReaderGroupConfig, gen uint64) error {
	oldStreams := streamSet(oldCfg, pinning(oldCfg))
	newStreams := streamSet(newCfg, pinning(newCfg))

	for stream := range newStreams {
		if oldStreams[stream] {
			continue
		}
		stream := stream
		if err := m.retryUpstream(ctx, func() error {
			return m.client.AddSubscriber(ctx, stream, m.subscriberID(), gen)
		}); err != nil {
			return err
		}
		m.live.Set(stream.String(), true)
		glog.V(1).Infof("subscriber: added %s on %s at generation %d", m.subscriberID(), stream, gen)
	}
	for stream := range oldStreams {
		if newStreams[stream] {
			continue
		}
		stream := stream
		if err := m.retryUpstream(ctx, func() error {
			return m.client.DeleteSubscriber(ctx, stream, m.subscriberID(), gen)
		}); err != nil {
			return err
		}
		m.live.Remove(stream.String())
		glog.V(1).Infof("subscriber: removed %s on %s at generation %d", m.subscriberID(), stream, gen)
	}
	return nil
}

// Delete unregisters every retention-pinning stream in cfg's starting
// cuts, at generation gen. Called from doDelete (spec.md §4.C).
func (m *Manager) Delete(ctx context.Context, cfg model.ReaderGroupConfig, gen uint64) error {
	if !pinning(cfg) {
		return nil
	}
	for _, stream := range cfg.StartingStreams() {
		stream := stream
		if err := m.retryUpstream(ctx, func() error {
			return m.client.DeleteSubscriber(ctx, stream, m.subscriberID(), gen)
		}); err != nil {
			return err
		}
		m.live.Remove(stream.String())
		glog.V(1).Infof("subscriber: deleted %s on %s at generation %d", m.subscriberID(), stream, gen)
	}
	return nil
}

func streamSet(cfg model.ReaderGroupConfig, pinning bool) map[model.Stream]bool {
	out := map[model.Stream]bool{}
	if !pinning {
		return out
	}
	for _, s := range cfg.StartingStreams() {
		out[s] = true
	}
	return out
}
