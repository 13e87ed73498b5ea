// Package notifier implements the Notifier hub (component F): a
// fan-out of segment-change and end-of-data observables derived from
// state snapshot diffs, following the registry-of-channels shape
// weed/mq/client/sub_client/on_each_partition.go uses to fan a
// partition's events out to a caller callback, guarded with
// github.com/orcaman/concurrent-map/v2 so listener registration never
// races the coordinator's optimistic loop.
package notifier

import (
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/golang/glog"

	"github.com/anirudhkovuru/pravega/model"
)

// channelBufferSize bounds how many undelivered events a slow listener
// may accumulate before further sends are dropped rather than blocking
// the coordinator (spec.md §5: the coordinator must never block inside
// the optimistic loop).
const channelBufferSize = 16

// Hub fans out segment-change and end-of-data events to registered
// listeners.
type Hub struct {
	segmentListeners cmap.ConcurrentMap[string, chan model.SegmentEvent]
	eodListeners     cmap.ConcurrentMap[string, chan model.EndOfDataEvent]
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		segmentListeners: cmap.New[chan model.SegmentEvent](),
		eodListeners:     cmap.New[chan model.EndOfDataEvent](),
	}
}

// SegmentNotifier registers a new segment-change listener under id and
// returns the receive-only channel spec.md §6.2's getSegmentNotifier
// exposes. Registering twice under the same id replaces the prior
// channel.
func (h *Hub) SegmentNotifier(id string) <-chan model.SegmentEvent {
	ch := make(chan model.SegmentEvent, channelBufferSize)
	h.segmentListeners.Set(id, ch)
	return ch
}

// EndOfDataNotifier registers a new end-of-data listener under id.
func (h *Hub) EndOfDataNotifier(id string) <-chan model.EndOfDataEvent {
	ch := make(chan model.EndOfDataEvent, channelBufferSize)
	h.eodListeners.Set(id, ch)
	return ch
}

// Unregister removes both notifier channels for id, if present, and
// closes them.
func (h *Hub) Unregister(id string) {
	if ch, ok := h.segmentListeners.Pop(id); ok {
		close(ch)
	}
	if ch, ok := h.eodListeners.Pop(id); ok {
		close(ch)
	}
}

// PublishSegmentEvent fans ev out to every registered listener,
// non-blocking: a listener that hasn't drained its buffer misses the
// event rather than stalling the publisher.
func (h *Hub) PublishSegmentEvent(ev model.SegmentEvent) {
	for tuple := range h.segmentListeners.IterBuffered() {
		select {
		case tuple.Val <- ev:
		default:
			glog.V(1).Infof("notifier: dropping segment event for slow listener %s", tuple.Key)
		}
	}
}

// PublishEndOfData fans ev out to every registered listener,
// non-blocking, mirroring PublishSegmentEvent.
func (h *Hub) PublishEndOfData(ev model.EndOfDataEvent) {
	for tuple := range h.eodListeners.IterBuffered() {
		select {
		case tuple.Val <- ev:
		default:
			glog.V(1).Infof("notifier: dropping end-of-data event for slow listener %s", tuple.Key)
		}
	}
}
