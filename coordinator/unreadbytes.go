package coordinator

import (
	"context"

	"github.com/anirudhkovuru/pravega/controller"
	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgmetrics"
)

// UnreadBytes computes the total byte distance between each stream's
// current position (preferring the last completed checkpoint, falling
// back to lastReadPositions, then to the stream's configured starting
// cut) and its configured ending cut, or the live tail when unbounded,
// summed across every stream in the group (spec.md §4.F).
func (c *Coordinator) UnreadBytes(ctx context.Context) (int64, error) {
	s, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}

	from, err := c.GetStreamCuts(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for stream := range s.Config.StartingStreamCuts {
		fromCut := from[stream]
		if fromCut == nil {
			fromCut = s.Config.StartingStreamCuts[stream]
		}
		endingCut, bounded := s.Config.EndingStreamCuts[stream]

		var streamTotal int64
		if bounded {
			var segs []model.Segment
			if err := c.retryUpstream(ctx, func() (err error) {
				segs, err = c.controller.GetSegments(ctx, fromCut, endingCut)
				return err
			}); err != nil {
				return 0, err
			}
			for _, seg := range segs {
				end := endingCut[seg]
				if end == model.EndOfSegmentOffset {
					// Run-to-end: this segment has no fixed ending offset,
					// so fall back to its live length like the unbounded
					// path does (spec.md §4.F).
					var length int64
					seg := seg
					if err := c.retryUpstream(ctx, func() (err error) {
						length, err = c.controller.GetSegmentLength(ctx, seg)
						return err
					}); err != nil {
						return 0, err
					}
					end = length
				}
				streamTotal += end - fromCut[seg]
			}
		} else {
			var result controller.SuccessorsResult
			if err := c.retryUpstream(ctx, func() (err error) {
				result, err = c.controller.GetSuccessors(ctx, fromCut)
				return err
			}); err != nil {
				return 0, err
			}
			for _, seg := range result.Segments {
				var length int64
				seg := seg
				if err := c.retryUpstream(ctx, func() (err error) {
					length, err = c.controller.GetSegmentLength(ctx, seg)
					return err
				}); err != nil {
					return 0, err
				}
				streamTotal += length - fromCut[seg]
			}
		}
		rgmetrics.ObserveUnreadBytes(c.groupName, stream, streamTotal)
		total += streamTotal
	}
	return total, nil
}
