// Package controllerfake is an in-memory controller.Client used by
// coordinator tests, grounded on the teacher's own preference for a
// direct in-process fake over a mock-generator (weed/mq/broker_test.go
// dials a real bufconn server; here the RPC surface is a plain
// interface so a struct implementing it directly is the equivalent,
// simpler substitute).
package controllerfake

import (
	"context"
	"errors"
	"sync"

	"github.com/anirudhkovuru/pravega/controller"
	"github.com/anirudhkovuru/pravega/model"
	"github.com/anirudhkovuru/pravega/rgerrors"
)

// Subscription records one addSubscriber/updateSubscriberStreamCut
// call sequence, keyed by (stream, subscriberID), for test assertions.
type Subscription struct {
	Generation uint64
	Cut        model.StreamCut
	Deleted    bool
}

// Client is a scriptable controller.Client. Zero value is usable.
type Client struct {
	mu sync.Mutex

	SegmentLengths map[model.Segment]int64

	// Successors and SegmentsBetween let a test script the segment
	// topology GetSuccessors/GetSegments would otherwise have to
	// compute from a real controller; both are keyed by the stream the
	// query cut belongs to (every segment in a StreamCut argument
	// shares one stream in this module's call sites).
	Successors      map[model.Stream]controller.SuccessorsResult
	SegmentsBetween map[model.Stream][]model.Segment

	subscriptions map[string]*Subscription

	// InvalidStreams causes GetSegmentsAtTime/GetSegments to return
	// rgerrors-classified InvalidStream for the named stream.
	InvalidStreams map[model.Stream]bool

	// FlakyCalls scripts a transient failure: a test sets
	// FlakyCalls[method+"|"+stream.String()] = n, and the next n calls
	// to that method for that stream return rgerrors.RetryableUpstream
	// before the (n+1)th call succeeds normally. Lets a test exercise a
	// caller's backoff.Retry loop deterministically.
	FlakyCalls map[string]int

	// FailCalls scripts a permanent, non-retryable failure for
	// method+"|"+stream.String(): every call to that method for that
	// stream returns the given error unchanged, unaffected by
	// FlakyCalls. Lets a test assert a caller's backoff.Retry loop
	// stops on the first attempt.
	FailCalls map[string]error
}

// New returns an empty fake ready for use.
func New() *Client {
	return &Client{
		SegmentLengths:  map[model.Segment]int64{},
		Successors:      map[model.Stream]controller.SuccessorsResult{},
		SegmentsBetween: map[model.Stream][]model.Segment{},
		subscriptions:   map[string]*Subscription{},
		InvalidStreams:  map[model.Stream]bool{},
		FlakyCalls:      map[string]int{},
		FailCalls:       map[string]error{},
	}
}

func key(stream model.Stream, subscriberID string) string {
	return stream.String() + "|" + subscriberID
}

// flake reports whether this call to method for stream should fail,
// decrementing FlakyCalls' remaining count when the failure is
// transient. Caller must hold c.mu.
func (c *Client) flake(method string, stream model.Stream) error {
	k := method + "|" + stream.String()
	if err, ok := c.FailCalls[k]; ok {
		return err
	}
	if c.FlakyCalls[k] <= 0 {
		return nil
	}
	c.FlakyCalls[k]--
	return rgerrors.RetryableUpstream{Err: errFlaky}
}

var errFlaky = errors.New("controllerfake: scripted transient failure")

func (c *Client) GetSegmentsAtTime(_ context.Context, stream model.Stream, _ int64) (model.StreamCut, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InvalidStreams[stream] {
		return nil, rgerrors.ErrInvalidStream
	}
	return model.StreamCut{}, nil
}

func (c *Client) GetSuccessors(_ context.Context, cut model.StreamCut) (controller.SuccessorsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream := cut.Stream()
	if err := c.flake("GetSuccessors", stream); err != nil {
		return controller.SuccessorsResult{}, err
	}
	if result, ok := c.Successors[stream]; ok {
		return result, nil
	}
	return controller.SuccessorsResult{}, nil
}

func (c *Client) GetSegments(_ context.Context, from, to model.StreamCut) ([]model.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream := to.Stream()
	if c.InvalidStreams[stream] {
		return nil, rgerrors.ErrInvalidStream
	}
	if err := c.flake("GetSegments", stream); err != nil {
		return nil, err
	}
	if segs, ok := c.SegmentsBetween[stream]; ok {
		return segs, nil
	}
	var segs []model.Segment
	for seg := range from {
		segs = append(segs, seg)
	}
	for seg := range to {
		if _, inFrom := from[seg]; !inFrom {
			segs = append(segs, seg)
		}
	}
	return segs, nil
}

func (c *Client) GetSegmentLength(_ context.Context, segment model.Segment) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flake("GetSegmentLength", segment.Stream); err != nil {
		return 0, err
	}
	return c.SegmentLengths[segment], nil
}

func (c *Client) AddSubscriber(_ context.Context, stream model.Stream, subscriberID string, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flake("AddSubscriber", stream); err != nil {
		return err
	}
	k := key(stream, subscriberID)
	if sub, ok := c.subscriptions[k]; ok && gen <= sub.Generation {
		return nil
	}
	c.subscriptions[k] = &Subscription{Generation: gen, Cut: model.StreamCut{}}
	return nil
}

func (c *Client) UpdateSubscriberStreamCut(_ context.Context, stream model.Stream, subscriberID string, cut model.StreamCut, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flake("UpdateSubscriberStreamCut", stream); err != nil {
		return err
	}
	k := key(stream, subscriberID)
	sub, ok := c.subscriptions[k]
	if !ok || gen < sub.Generation {
		return nil
	}
	sub.Cut = cut.Clone()
	sub.Generation = gen
	return nil
}

func (c *Client) DeleteSubscriber(_ context.Context, stream model.Stream, subscriberID string, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flake("DeleteSubscriber", stream); err != nil {
		return err
	}
	k := key(stream, subscriberID)
	sub, ok := c.subscriptions[k]
	if !ok {
		return nil
	}
	sub.Deleted = true
	return nil
}

// Subscription returns the recorded subscription state for assertions.
func (c *Client) Subscription(stream model.Stream, subscriberID string) (Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[key(stream, subscriberID)]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}
