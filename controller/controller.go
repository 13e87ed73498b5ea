// Package controller defines the contract for the upstream controller
// RPCs the coordinator invokes (spec.md §6.1). The controller service
// itself — its wire transport, auth, and the rest of its RPC surface —
// is an explicit external collaborator (spec.md §1) outside this
// module's scope; only the calls the core actually issues are
// modeled here, as a plain Go interface so the coordinator can be
// exercised against a fake without a network.
package controller

import (
	"context"

	"github.com/anirudhkovuru/pravega/model"
)

// SuccessorsResult is getSuccessors' result: the set of segments
// succeeding the cut, plus each successor's immediate predecessors
// (used by getSuccessors-driven rebalancing, out of this module's
// direct scope beyond stream-cut math).
type SuccessorsResult struct {
	Segments     []model.Segment
	Predecessors map[model.Segment][]model.Segment
}

// Client is the contract of every controller RPC the coordinator calls.
// Implementations must honor the idempotency column of spec.md §6.1:
// addSubscriber/updateSubscriberStreamCut/deleteSubscriber are NOPs
// when called with a generation the controller has already superseded.
type Client interface {
	// GetSegmentsAtTime returns the stream-cut at time t (t>=0, epoch
	// millis).
	GetSegmentsAtTime(ctx context.Context, stream model.Stream, t int64) (model.StreamCut, error)

	// GetSuccessors returns the segments succeeding cut and their
	// predecessors.
	GetSuccessors(ctx context.Context, cut model.StreamCut) (SuccessorsResult, error)

	// GetSegments returns the segment set from from through to,
	// including the segments of both cuts, which must be cuts on the
	// same stream.
	GetSegments(ctx context.Context, from, to model.StreamCut) ([]model.Segment, error)

	// GetSegmentLength returns the current end offset of an open
	// segment, used by unreadBytes for unbounded ending cuts.
	GetSegmentLength(ctx context.Context, segment model.Segment) (int64, error)

	// AddSubscriber registers subscriberID as a retention-pinning
	// subscriber of stream at generation gen. A NOP if gen <= stored.
	AddSubscriber(ctx context.Context, stream model.Stream, subscriberID string, gen uint64) error

	// UpdateSubscriberStreamCut advances subscriberID's pinned cut. A
	// NOP if gen < stored.
	UpdateSubscriberStreamCut(ctx context.Context, stream model.Stream, subscriberID string, cut model.StreamCut, gen uint64) error

	// DeleteSubscriber removes subscriberID's pin. A NOP if already
	// deleted.
	DeleteSubscriber(ctx context.Context, stream model.Stream, subscriberID string, gen uint64) error
}

// SubscriberID builds the conventional subscriber identifier spec.md
// §4.C specifies: groupName || synchronizer.segmentId, where segmentId
// is the physical identity of the backing state-synchronizer segment
// (stable for the lifetime of this incarnation of the group, so a
// delete-then-recreate of the same-named group never collides with a
// stale subscription).
func SubscriberID(groupName, synchronizerSegmentID string) string {
	return groupName + synchronizerSegmentID
}
