package controllerhash

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhkovuru/pravega/controller"
	"github.com/anirudhkovuru/pravega/controller/controllerfake"
	"github.com/anirudhkovuru/pravega/model"
)

func TestPickIsStableForOneStream(t *testing.T) {
	p := NewPicker([]string{"controller-0:9090", "controller-1:9090", "controller-2:9090"})
	stream := model.Stream{Scope: "s", Name: "a"}

	first := p.Pick(stream)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Pick(stream))
	}
}

func TestRouterDispatchesToThePickedEndpointOnly(t *testing.T) {
	ctx := context.Background()
	endpoints := []string{"controller-0:9090", "controller-1:9090", "controller-2:9090"}
	fakes := make(map[string]*controllerfake.Client, len(endpoints))
	router := NewRouter(endpoints, func(endpoint string) controller.Client {
		c := controllerfake.New()
		fakes[endpoint] = c
		return c
	})

	stream := model.Stream{Scope: "s", Name: "a"}
	require.NoError(t, router.AddSubscriber(ctx, stream, "sub1", 1))

	owner := router.picker.Pick(stream)
	_, onOwner := fakes[owner].Subscription(stream, "sub1")
	assert.True(t, onOwner)

	for endpoint, fake := range fakes {
		if endpoint == owner {
			continue
		}
		_, onOther := fake.Subscription(stream, "sub1")
		assert.False(t, onOther)
	}
}

func TestRouterExtractsStreamFromCutArguments(t *testing.T) {
	ctx := context.Background()
	endpoints := []string{"controller-0:9090", "controller-1:9090"}
	fakes := make(map[string]*controllerfake.Client, len(endpoints))
	router := NewRouter(endpoints, func(endpoint string) controller.Client {
		c := controllerfake.New()
		fakes[endpoint] = c
		return c
	})

	stream := model.Stream{Scope: "s", Name: "b"}
	seg := model.Segment{Stream: stream, SegmentID: 0}
	owner := fakes[router.picker.Pick(stream)]
	owner.Successors[stream] = controller.SuccessorsResult{Segments: []model.Segment{seg}}

	result, err := router.GetSuccessors(ctx, model.StreamCut{seg: 0})
	require.NoError(t, err)
	assert.Equal(t, []model.Segment{seg}, result.Segments)
}
