package coordinator

import (
	"context"

	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgerrors"
)

// UpdateRetentionStreamCut pins the upstream controller's truncation
// point for every stream in cuts. Requires the group be READY (spec.md
// §4.D); the upstream controller enforces the configured min/max
// retention window itself.
func (c *Coordinator) UpdateRetentionStreamCut(ctx context.Context, cuts map[model.Stream]model.StreamCut) error {
	s, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	if s.ConfigState != model.Ready {
		return rgerrors.ErrIllegalState
	}
	subscriberID := c.SubscriberID()
	for stream, cut := range cuts {
		stream, cut := stream, cut
		if err := c.retryUpstream(ctx, func() error {
			return c.controller.UpdateSubscriberStreamCut(ctx, stream, subscriberID, cut, s.Generation)
		}); err != nil {
			return err
		}
	}
	return nil
}

// GetStreamCuts returns the current best-known position per stream: the
// last completed checkpoint's positions when one exists, otherwise the
// per-reader lastReadPositions with reassignment ranges erased (spec.md
// §4.F's "range-erased" fallback, reused here since both paths need the
// same projection).
func (c *Coordinator) GetStreamCuts(ctx context.Context) (map[model.Stream]model.StreamCut, error) {
	s, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := map[model.Stream]model.StreamCut{}
	if s.Checkpoints.LastCompleted != nil {
		for stream, cut := range s.Checkpoints.LastCompleted.Positions {
			sc := model.StreamCut{}
			for seg, off := range cut {
				sc[seg] = off
			}
			out[stream] = sc
		}
	}
	for stream, positions := range s.LastReadPositions {
		if _, ok := out[stream]; ok {
			continue
		}
		sc := model.StreamCut{}
		for seg, off := range positions {
			sc[seg.Segment] = off
		}
		out[stream] = sc
	}
	return out, nil
}
