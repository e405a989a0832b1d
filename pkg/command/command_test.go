package command

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openswarm-eu/swarmit/pkg/frame"
	"github.com/openswarm-eu/swarmit/pkg/registry"
)

// fakeSender records every frame sent, and optionally triggers a reaction
// (e.g. a simulated status notification) when it observes a send.
type fakeSender struct {
	mu     sync.Mutex
	sent   []sentFrame
	onSend func(dst frame.Address, payload frame.Payload)
}

type sentFrame struct {
	dst     frame.Address
	payload frame.Payload
}

func (f *fakeSender) Send(dst frame.Address, payload frame.Payload) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentFrame{dst, payload})
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(dst, payload)
	}
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestStatusEnumerationScenario(t *testing.T) {
	// Two devices reply within the status window.
	reg := registry.New(nil)
	sender := &fakeSender{}
	eng := &Engine{Registry: reg, Sender: sender, StatusTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond}

	sender.onSend = func(dst frame.Address, payload frame.Payload) {
		if _, ok := payload.(*frame.StatusRequestPayload); !ok {
			return
		}
		go func() {
			reg.Update(frame.Address(1), frame.Running)
			eng.OnStatusNotification(frame.Address(1))
			reg.Update(frame.Address(2), frame.Bootloader)
			eng.OnStatusNotification(frame.Address(2))
		}()
	}

	got := eng.Status()
	require.Equal(t, map[frame.Address]frame.DeviceStatus{
		frame.Address(1): frame.Running,
		frame.Address(2): frame.Bootloader,
	}, got)
	require.Equal(t, 1, sender.count())
	require.Equal(t, frame.Broadcast, sender.sent[0].dst)
}

func TestUnicastStartSkipsDeviceNotReady(t *testing.T) {
	// Allow-list holds only device 2, which is Running, not ready: nothing
	// is sent and nothing is reported started.
	reg := registry.New([]frame.Address{2})
	reg.Update(frame.Address(2), frame.Running)
	sender := &fakeSender{}
	eng := &Engine{Registry: reg, Sender: sender, AllowList: []frame.Address{2}, CommandTimeout: 20 * time.Millisecond, PollInterval: time.Millisecond}

	got := eng.Start()
	require.Empty(t, got)
	require.Equal(t, 0, sender.count())
}

func TestBroadcastStopPartiallyRunningScenario(t *testing.T) {
	reg := registry.New(nil)
	reg.Update(frame.Address(1), frame.Running)
	reg.Update(frame.Address(2), frame.Resetting)
	reg.Update(frame.Address(3), frame.Bootloader)
	sender := &fakeSender{}
	eng := &Engine{Registry: reg, Sender: sender, CommandTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond}

	sender.onSend = func(dst frame.Address, payload frame.Payload) {
		if _, ok := payload.(*frame.StopRequestPayload); !ok {
			return
		}
		go func() {
			reg.Update(frame.Address(1), frame.Bootloader)
			reg.Update(frame.Address(2), frame.Bootloader)
		}()
	}

	got := eng.Stop()
	require.ElementsMatch(t, []frame.Address{1, 2, 3}, got)
	require.Equal(t, 1, sender.count())
}

func TestBroadcastStartEveryReadyDeviceBecomesRunning(t *testing.T) {
	reg := registry.New(nil)
	reg.Update(frame.Address(1), frame.Bootloader)
	reg.Update(frame.Address(2), frame.Bootloader)
	sender := &fakeSender{}
	eng := &Engine{Registry: reg, Sender: sender, CommandTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond}

	sender.onSend = func(dst frame.Address, payload frame.Payload) {
		if _, ok := payload.(*frame.StartRequestPayload); !ok {
			return
		}
		go func() {
			reg.Update(frame.Address(1), frame.Running)
			reg.Update(frame.Address(2), frame.Running)
		}()
	}

	got := eng.Start()
	require.ElementsMatch(t, []frame.Address{1, 2}, got)
}

func TestResetIsFireAndForget(t *testing.T) {
	reg := registry.New(nil)
	sender := &fakeSender{}
	eng := &Engine{Registry: reg, Sender: sender}

	eng.Reset(-100, 200)
	require.Equal(t, 1, sender.count())
	payload, ok := sender.sent[0].payload.(*frame.ResetRequestPayload)
	require.True(t, ok)
	require.Equal(t, int32(-100), payload.PosX)
	require.Equal(t, int32(200), payload.PosY)
}

func TestMessageUnicastToAllowList(t *testing.T) {
	reg := registry.New([]frame.Address{1, 2})
	sender := &fakeSender{}
	eng := &Engine{Registry: reg, Sender: sender, AllowList: []frame.Address{1, 2}}

	eng.Message("hi")
	require.Equal(t, 2, sender.count())
}
