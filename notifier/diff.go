package notifier

import (
	"sort"

	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/state"
)

// PublishDiff computes the segment-change and end-of-data events
// implied by moving from prev to next and publishes them, the way
// spec.md's design note describes the notifier system: "a fan-out
// channel derived from snapshot diffs". prev is nil for the very first
// observed snapshot, in which case nothing publishes yet — there is no
// prior shape to have changed.
func (h *Hub) PublishDiff(prev, next *state.State) {
	if prev == nil || next == nil {
		return
	}
	for _, ev := range diffSegmentEvents(prev, next) {
		h.PublishSegmentEvent(ev)
	}
	if ev, ok := diffEndOfData(prev, next); ok {
		h.PublishEndOfData(ev)
	}
}

// segmentsByStream groups a snapshot's partition (assigned + unassigned)
// by stream, keyed by the underlying Segment so a range change alone
// (without a membership change) is not mistaken for an add/close.
func segmentsByStream(s *state.State) map[model.Stream]map[model.Segment]model.SegmentWithRange {
	out := map[model.Stream]map[model.Segment]model.SegmentWithRange{}
	for swr := range s.AllSegments() {
		byStream := out[swr.Segment.Stream]
		if byStream == nil {
			byStream = map[model.Segment]model.SegmentWithRange{}
			out[swr.Segment.Stream] = byStream
		}
		byStream[swr.Segment] = swr
	}
	return out
}

func diffSegmentEvents(prev, next *state.State) []model.SegmentEvent {
	prevByStream := segmentsByStream(prev)
	nextByStream := segmentsByStream(next)

	seen := map[model.Stream]bool{}
	var streams []model.Stream
	for stream := range prevByStream {
		if !seen[stream] {
			seen[stream] = true
			streams = append(streams, stream)
		}
	}
	for stream := range nextByStream {
		if !seen[stream] {
			seen[stream] = true
			streams = append(streams, stream)
		}
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].String() < streams[j].String() })

	var events []model.SegmentEvent
	for _, stream := range streams {
		before := prevByStream[stream]
		after := nextByStream[stream]

		var added []model.SegmentWithRange
		for seg, swr := range after {
			if _, ok := before[seg]; !ok {
				added = append(added, swr)
			}
		}
		var closed []model.Segment
		for seg := range before {
			if _, ok := after[seg]; !ok {
				closed = append(closed, seg)
			}
		}
		if len(added) == 0 && len(closed) == 0 {
			continue
		}
		sort.Slice(added, func(i, j int) bool { return added[i].Segment.SegmentID < added[j].Segment.SegmentID })
		sort.Slice(closed, func(i, j int) bool { return closed[i].SegmentID < closed[j].SegmentID })
		events = append(events, model.SegmentEvent{Stream: stream, Added: added, Closed: closed})
	}
	return events
}

// isStreamDone reports whether every segment stream currently owns in
// s's partition has reached its configured ending offset. A stream with
// no ending offset recorded for one of its segments, or a run-to-end
// (RunToEndOffset) segment, is never done. A stream that currently owns
// no segments at all is not considered done either — there is nothing
// to have finished.
func isStreamDone(s *state.State, stream model.Stream) bool {
	done := false
	for swr, off := range s.AllSegments() {
		if swr.Segment.Stream != stream {
			continue
		}
		end, ok := s.EndSegments[swr.Segment]
		if !ok || end == model.RunToEndOffset || off < end {
			return false
		}
		done = true
	}
	return done
}

// allConfiguredStreamsDone reports whether every stream s.Config
// declares an ending cut for has been fully consumed. A group with no
// ending cuts at all (fully open-ended) is never done.
func allConfiguredStreamsDone(s *state.State) bool {
	if len(s.Config.EndingStreamCuts) == 0 {
		return false
	}
	for stream := range s.Config.EndingStreamCuts {
		if !isStreamDone(s, stream) {
			return false
		}
	}
	return true
}

// diffEndOfData fires exactly on the transition into "every configured
// stream is done", matching the doc on model.EndOfDataEvent: published
// once every stream in the group's ending cuts has been fully consumed.
func diffEndOfData(prev, next *state.State) (model.EndOfDataEvent, bool) {
	if allConfiguredStreamsDone(prev) || !allConfiguredStreamsDone(next) {
		return model.EndOfDataEvent{}, false
	}
	streams := make([]model.Stream, 0, len(next.Config.EndingStreamCuts))
	for stream := range next.Config.EndingStreamCuts {
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].String() < streams[j].String() })
	return model.EndOfDataEvent{Streams: streams}, true
}
