package coordinator

import (
	"context"

	"github.com/golang/glog"

	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgerrors"
	"github.com/anirudhkovuru/pravega/state"
)

// CreateState seeds a brand-new reader group from cfg: the segments
// backing cfg's starting/ending stream-cuts become the initial
// partition, entirely unassigned. A second CreateState call against an
// already-initialized synchronizer key is a no-op success, matching
// createState's idempotent-creation contract (spec.md §4.C).
func (c *Coordinator) CreateState(ctx context.Context, cfg model.ReaderGroupConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	init := state.ReaderGroupStateInit{
		Config:          cfg,
		InitialSegments: segmentsFromCuts(cfg.StartingStreamCuts),
		EndSegments:     endSegmentsFromCuts(cfg.EndingStreamCuts),
	}
	if _, _, err := c.sync.UpdateUnconditionally(ctx, init); err != nil {
		return err
	}
	return c.Reconcile(ctx)
}

// segmentsFromCuts flattens a stream-cut map into the SegmentWithRange
// offset map ReaderGroupStateInit / ReaderGroupStateResetComplete
// expect; a reader group's starting cuts already name every segment it
// begins on, so no controller round trip is needed to seed the
// partition.
func segmentsFromCuts(cuts map[model.Stream]model.StreamCut) map[model.SegmentWithRange]int64 {
	out := map[model.SegmentWithRange]int64{}
	for _, cut := range cuts {
		for seg, off := range cut {
			out[model.SegmentWithRange{Segment: seg}] = off
		}
	}
	return out
}

// endSegmentsFromCuts flattens an ending stream-cut map into the
// per-segment ending offsets state.EndSegments tracks, promoting the
// EndOfSegmentOffset (-1) run-to-end sentinel to RunToEndOffset
// (math.MaxInt64) as it crosses into the core (spec.md §3: "internally
// promoted to i64::MAX").
func endSegmentsFromCuts(cuts map[model.Stream]model.StreamCut) map[model.Segment]int64 {
	out := map[model.Segment]int64{}
	for _, cut := range cuts {
		for seg, off := range cut {
			if off == model.EndOfSegmentOffset {
				off = model.RunToEndOffset
			}
			out[seg] = off
		}
	}
	return out
}

// doInit registers upstream subscribers for every retention-pinning
// starting stream, then proposes the INITIALIZING -> READY transition
// guarded by the generation observed in s. A transition that has
// already happened (raced by another coordinator) is treated as
// success.
func (c *Coordinator) doInit(ctx context.Context, s *state.State) error {
	if err := c.subs.Init(ctx, s.Config, s.Generation); err != nil {
		return err
	}
	_, err := c.optimisticUpdate(ctx, func(cur *state.State) (state.Update, error) {
		if cur.ConfigState != model.Initializing {
			return nil, nil
		}
		return state.ChangeConfigState{Target: model.Ready, ExpectedGeneration: cur.Generation}, nil
	})
	if err != nil {
		glog.Errorf("coordinator[%s]: doInit failed: %v", c.groupName, err)
	}
	return err
}

// doReinit reconciles subscriber registrations for the pending
// newConfig against the current config, then proposes
// REINITIALIZING -> READY with the new config's segments re-seeded as
// entirely unassigned.
func (c *Coordinator) doReinit(ctx context.Context, s *state.State) error {
	if s.NewConfig == nil {
		return rgerrors.ErrFatal
	}
	if err := c.subs.Reconcile(ctx, s.Config, *s.NewConfig, s.Generation); err != nil {
		return err
	}
	_, err := c.optimisticUpdate(ctx, func(cur *state.State) (state.Update, error) {
		if cur.ConfigState != model.Reinitializing || cur.NewConfig == nil {
			return nil, nil
		}
		return state.ReaderGroupStateResetComplete{
			Segments:    segmentsFromCuts(cur.NewConfig.StartingStreamCuts),
			EndSegments: endSegmentsFromCuts(cur.NewConfig.EndingStreamCuts),
		}, nil
	})
	if err != nil {
		glog.Errorf("coordinator[%s]: doReinit failed: %v", c.groupName, err)
	}
	return err
}

// doDelete unregisters every retention-pinning starting stream upstream.
// The DELETING state itself is terminal; no further state transition is
// proposed.
func (c *Coordinator) doDelete(ctx context.Context, s *state.State) error {
	if err := c.subs.Delete(ctx, s.Config, s.Generation); err != nil {
		return err
	}
	glog.V(1).Infof("coordinator[%s]: deletion cleanup complete at generation %d", c.groupName, s.Generation)
	return nil
}

// ResetReaderGroup requests a reconfiguration. Exactly one concurrent
// caller's generation fence wins (scenario S4); the loser observes
// REINITIALIZING on its next read and both return once doReinit has run
// against the surviving newConfig — a caller that raced a winning
// ResetReaderGroup elsewhere simply joins that reconfiguration instead
// of erroring.
func (c *Coordinator) ResetReaderGroup(ctx context.Context, newCfg model.ReaderGroupConfig) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}
	s, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	switch s.ConfigState {
	case model.Deleting:
		return rgerrors.ErrReinitializationRequired
	case model.Reinitializing:
		// Someone else's reset already won; join it with the config that
		// actually landed.
		return c.doReinit(ctx, s)
	}
	gen := s.Generation
	_, err = c.optimisticUpdate(ctx, func(cur *state.State) (state.Update, error) {
		if cur.ConfigState == model.Reinitializing || cur.Generation != gen {
			return nil, nil
		}
		return state.ReaderGroupStateResetStart{NewConfig: newCfg, NewGeneration: gen + 1}, nil
	})
	if err != nil {
		return err
	}
	s, err = c.fetch(ctx)
	if err != nil {
		return err
	}
	if s.ConfigState != model.Reinitializing {
		return nil
	}
	return c.doReinit(ctx, s)
}

// DeleteState requests the group's deletion, then runs the cleanup
// dispatch immediately so a single-shot caller doesn't need a
// background Run loop to observe DELETING.
func (c *Coordinator) DeleteState(ctx context.Context) error {
	s, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	if s.ConfigState == model.Deleting {
		return c.doDelete(ctx, s)
	}
	next, err := c.optimisticUpdate(ctx, func(cur *state.State) (state.Update, error) {
		if cur.ConfigState == model.Deleting {
			return nil, nil
		}
		return state.ChangeConfigState{Target: model.Deleting, ExpectedGeneration: cur.Generation}, nil
	})
	if err != nil {
		return err
	}
	return c.doDelete(ctx, next)
}
