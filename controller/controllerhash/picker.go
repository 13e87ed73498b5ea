// Package controllerhash picks which controller gateway replica should
// serve a given stream, using the same consistent-hashing combination
// weed/mq/broker/consistent_distribution.go uses to pick a broker for a
// partition: github.com/buraksezer/consistent for the ring,
// github.com/cespare/xxhash/v2 as its hasher. Repeated calls for one
// stream land on the same replica, giving connection and cache locality
// without a central directory, in deployments that front the upstream
// controller with multiple stateless gateway replicas.
package controllerhash

import (
	"context"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"

	"github.com/anirudhkovuru/pravega/controller"
	"github.com/anirudhkovuru/pravega/model"
)

// ringConfig mirrors the teacher's PickMember tuning.
var ringConfig = consistent.Config{
	PartitionCount:    9791,
	ReplicationFactor: 2,
	Load:              1.25,
	Hasher:            hasher{},
}

type hasher struct{}

func (hasher) Sum64(data []byte) uint64 { return xxhash.Sum64(data) }

// endpoint adapts a plain string into consistent.Member.
type endpoint string

func (e endpoint) String() string { return string(e) }

// Picker selects a controller gateway endpoint for a stream.
type Picker struct {
	ring *consistent.Consistent
}

// NewPicker builds a picker over the given set of gateway endpoints
// (e.g. "controller-0.internal:9090"). Endpoints must be non-empty.
func NewPicker(endpoints []string) *Picker {
	members := make([]consistent.Member, 0, len(endpoints))
	for _, e := range endpoints {
		members = append(members, endpoint(e))
	}
	return &Picker{ring: consistent.New(members, ringConfig)}
}

// Pick returns the endpoint that owns stream's routing key.
func (p *Picker) Pick(stream model.Stream) string {
	return p.ring.LocateKey(stream.RoutingKey()).String()
}

// Router is a controller.Client that fronts one Client per gateway
// endpoint and dispatches every call to the endpoint Picker selects for
// the call's stream, so the coordinator issues every controller RPC
// through the consistent-hash seam rather than a single fixed
// connection. It implements controller.Client directly, so it drops
// into coordinator.New wherever a plain Client would go, the same way
// weed/mq/broker/consistent_distribution.go's picker sits transparently
// in front of the broker connection pool.
type Router struct {
	picker  *Picker
	clients map[string]controller.Client
}

var _ controller.Client = (*Router)(nil)

// NewRouter builds a Router over endpoints, dialing each one with dial.
// Endpoints must be non-empty and dial must return a non-nil Client for
// every endpoint.
func NewRouter(endpoints []string, dial func(endpoint string) controller.Client) *Router {
	clients := make(map[string]controller.Client, len(endpoints))
	for _, e := range endpoints {
		clients[e] = dial(e)
	}
	return &Router{picker: NewPicker(endpoints), clients: clients}
}

func (r *Router) clientFor(stream model.Stream) controller.Client {
	return r.clients[r.picker.Pick(stream)]
}

func (r *Router) GetSegmentsAtTime(ctx context.Context, stream model.Stream, t int64) (model.StreamCut, error) {
	return r.clientFor(stream).GetSegmentsAtTime(ctx, stream, t)
}

func (r *Router) GetSuccessors(ctx context.Context, cut model.StreamCut) (controller.SuccessorsResult, error) {
	return r.clientFor(cut.Stream()).GetSuccessors(ctx, cut)
}

func (r *Router) GetSegments(ctx context.Context, from, to model.StreamCut) ([]model.Segment, error) {
	return r.clientFor(to.Stream()).GetSegments(ctx, from, to)
}

func (r *Router) GetSegmentLength(ctx context.Context, segment model.Segment) (int64, error) {
	return r.clientFor(segment.Stream).GetSegmentLength(ctx, segment)
}

func (r *Router) AddSubscriber(ctx context.Context, stream model.Stream, subscriberID string, gen uint64) error {
	return r.clientFor(stream).AddSubscriber(ctx, stream, subscriberID, gen)
}

func (r *Router) UpdateSubscriberStreamCut(ctx context.Context, stream model.Stream, subscriberID string, cut model.StreamCut, gen uint64) error {
	return r.clientFor(stream).UpdateSubscriberStreamCut(ctx, stream, subscriberID, cut, gen)
}

func (r *Router) DeleteSubscriber(ctx context.Context, stream model.Stream, subscriberID string, gen uint64) error {
	return r.clientFor(stream).DeleteSubscriber(ctx, stream, subscriberID, gen)
}
