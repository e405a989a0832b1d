package controller

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openswarm-eu/swarmit/pkg/adapter"
	"github.com/openswarm-eu/swarmit/pkg/frame"
)

// fakeAdapter lets tests inject inbound frames directly and inspect what
// was sent, without a real transport.
type fakeAdapter struct {
	mu      sync.Mutex
	sent    []frame.Payload
	onFrame adapter.FrameHandler
	closed  bool
}

func (a *fakeAdapter) Init(onFrame adapter.FrameHandler) error {
	a.onFrame = onFrame
	return nil
}

func (a *fakeAdapter) Send(dst frame.Address, payload frame.Payload) error {
	a.mu.Lock()
	a.sent = append(a.sent, payload)
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) Close() error {
	a.closed = true
	return nil
}

func (a *fakeAdapter) deliver(f frame.Frame) {
	a.onFrame(f)
}

func TestControllerUpdatesRegistryOnStatusNotification(t *testing.T) {
	a := &fakeAdapter{}
	c := New(a, nil, nil)
	require.NoError(t, c.Start())

	a.deliver(frame.Frame{
		Header:  frame.Header{Address: frame.Address(7)},
		Payload: &frame.StatusNotificationPayload{Status: frame.Running},
	})

	known := c.Registry.Known()
	require.Equal(t, frame.Running, known[frame.Address(7)])
}

func TestControllerFiltersNonAllowedAddress(t *testing.T) {
	a := &fakeAdapter{}
	c := New(a, []frame.Address{1}, nil)
	require.NoError(t, c.Start())

	a.deliver(frame.Frame{
		Header:  frame.Header{Address: frame.Address(99)},
		Payload: &frame.StatusNotificationPayload{Status: frame.Running},
	})

	require.Empty(t, c.Registry.Known())
}

func TestControllerDispatchesEventsToSink(t *testing.T) {
	a := &fakeAdapter{}
	c := New(a, nil, nil)
	require.NoError(t, c.Start())

	var got []Event
	c.OnEvent(func(e Event) { got = append(got, e) })

	a.deliver(frame.Frame{
		Header:  frame.Header{Address: frame.Address(1)},
		Payload: frame.NewGPIOEvent(42, []byte{0x01}),
	})

	require.Len(t, got, 1)
	require.Equal(t, frame.Address(1), got[0].Source)
	require.Equal(t, uint32(42), got[0].Timestamp)
}

func TestControllerForwardsOTAAcksToEngine(t *testing.T) {
	a := &fakeAdapter{}
	c := New(a, nil, nil)
	require.NoError(t, c.Start())

	a.deliver(frame.Frame{
		Header:  frame.Header{Address: frame.Address(3)},
		Payload: &frame.OTAChunkAckPayload{Index: 2, HashesMatch: true},
	})
	// No public getter on the OTA engine's in-flight session without a
	// StartOTA call; this simply exercises the dispatch path for panics.
}

func TestControllerTerminateClosesAdapter(t *testing.T) {
	a := &fakeAdapter{}
	c := New(a, nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.Terminate())
	require.True(t, a.closed)
}
