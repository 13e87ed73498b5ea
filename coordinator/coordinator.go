// Package coordinator implements ReaderGroupImpl (component D): the
// per-process façade every reader and admin client drives, translating
// the operations weed/mq/sub_coordinator's Market drives its 500ms
// rebalance ticker through into optimistic reads and conditional writes
// against a synchronizer.StateSynchronizer, plus the upstream
// controller and subscriber-manager side effects those transitions
// require.
package coordinator

import (
	"context"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"

	"github.com/anirudhkovuru/pravega/controller"
	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/notifier"
	"github.com/anirudhkovuru/pravega/rgerrors"
	"github.com/anirudhkovuru/pravega/state"
	"github.com/anirudhkovuru/pravega/subscriber"
	"github.com/anirudhkovuru/pravega/synchronizer"
)

// Coordinator is one process's handle on a reader group. Many
// Coordinators, in many processes, may share the same group name; all
// cross-instance coordination happens through sync.
type Coordinator struct {
	groupName             string
	synchronizerSegmentID string

	sync       synchronizer.StateSynchronizer
	controller controller.Client
	subs       *subscriber.Manager
	notify     *notifier.Hub

	// upstreamBackoff builds the retry policy every post-commit
	// controller RPC runs under (spec.md §7's caller-configured
	// ceiling). Called fresh per retried call, since a backoff.BackOff
	// is single-use.
	upstreamBackoff func() backoff.BackOff
}

// Option configures optional Coordinator behavior.
type Option func(*Coordinator)

// WithUpstreamBackoff overrides the retry policy factory controller RPC
// calls run under. Defaults to rgerrors.DefaultUpstreamBackoff, the
// same bounded shape syncetcd's Get retries use.
func WithUpstreamBackoff(factory func() backoff.BackOff) Option {
	return func(c *Coordinator) { c.upstreamBackoff = factory }
}

// New wires a Coordinator for one reader group. synchronizerSegmentID is
// the physical identity of the backing synchronizer segment (spec.md
// §4.C); callers obtain it from whatever storage segment their
// synchronizer implementation allocated for this group's key.
func New(groupName, synchronizerSegmentID string, sync synchronizer.StateSynchronizer, ctrl controller.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		groupName:             groupName,
		synchronizerSegmentID: synchronizerSegmentID,
		sync:                  sync,
		controller:            ctrl,
		notify:                notifier.NewHub(),
		upstreamBackoff:       rgerrors.DefaultUpstreamBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.subs = subscriber.New(groupName, synchronizerSegmentID, ctrl, subscriber.WithUpstreamBackoff(c.upstreamBackoff))
	return c
}

// retryUpstream runs fn — a single controller RPC attempt — under
// c.upstreamBackoff, retrying only rgerrors.RetryableUpstream failures
// (spec.md §7).
func (c *Coordinator) retryUpstream(ctx context.Context, fn func() error) error {
	return rgerrors.Retry(ctx, c.upstreamBackoff(), fn)
}

// GroupName returns the reader group's name.
func (c *Coordinator) GroupName() string { return c.groupName }

// SubscriberID is the identifier this coordinator's subscriber manager
// registers upstream under.
func (c *Coordinator) SubscriberID() string {
	return controller.SubscriberID(c.groupName, c.synchronizerSegmentID)
}

// Notifier exposes the segment-change / end-of-data notifier hub so
// callers can register listeners (getSegmentNotifier /
// getEndOfDataNotifier, spec.md §6.2).
func (c *Coordinator) Notifier() *notifier.Hub { return c.notify }

// optimisticUpdate wraps synchronizer.OptimisticUpdate, logging conflicts
// at V(2) the way the teacher's Market loop logs a skipped balance tick
// rather than treating contention as an error.
func (c *Coordinator) optimisticUpdate(ctx context.Context, fn func(s *state.State) (state.Update, error)) (*state.State, error) {
	next, err := synchronizer.OptimisticUpdate(ctx, c.sync, fn)
	if err != nil {
		glog.V(2).Infof("coordinator[%s]: optimistic update failed: %v", c.groupName, err)
	}
	return next, err
}

func (c *Coordinator) fetch(ctx context.Context) (*state.State, error) {
	s, _, err := c.sync.FetchLatest(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, rgerrors.ErrReinitializationRequired
	}
	return s, nil
}

// Reconcile performs one lifecycle dispatch step against the current
// snapshot: doInit when INITIALIZING, doReinit when REINITIALIZING,
// doDelete when DELETING, and nothing when READY. Callers that want the
// continuous loop spec.md §4.C describes should call Reconcile
// repeatedly (e.g. from Run).
func (c *Coordinator) Reconcile(ctx context.Context) error {
	s, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	switch s.ConfigState {
	case model.Initializing:
		return c.doInit(ctx, s)
	case model.Reinitializing:
		return c.doReinit(ctx, s)
	case model.Deleting:
		return c.doDelete(ctx, s)
	default:
		return nil
	}
}

// Run drives Reconcile until the group reaches a terminal DELETING
// cleanup or ctx is cancelled, following the same select-on-ticker
// shape weed/mq/sub_coordinator.Market.loopBalanceLoad uses for its
// own 500ms cycle. On every iteration it diffs the snapshot it just
// observed against the one from the prior iteration and publishes any
// resulting segment-change / end-of-data events to the notifier hub
// (spec.md §9, "Notifier system... a broadcast queue... derived from
// snapshot diffs"), so listeners see changes whether they came from a
// lifecycle transition or from ordinary steady-state reader activity.
func (c *Coordinator) Run(ctx context.Context, sched Scheduler) error {
	var prev *state.State
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s, err := c.fetch(ctx)
		if err != nil {
			return err
		}
		c.notify.PublishDiff(prev, s)
		prev = s
		switch s.ConfigState {
		case model.Initializing:
			if err := c.doInit(ctx, s); err != nil {
				return err
			}
		case model.Reinitializing:
			if err := c.doReinit(ctx, s); err != nil {
				return err
			}
		case model.Deleting:
			return c.doDelete(ctx, s)
		case model.Ready:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sched.After(pollInterval):
			}
		}
	}
}
