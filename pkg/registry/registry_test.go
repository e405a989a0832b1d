package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openswarm-eu/swarmit/pkg/frame"
)

func TestUpdateIdempotent(t *testing.T) {
	r := New(nil)
	r.Update(frame.Address(1), frame.Running)
	r.Update(frame.Address(1), frame.Running)
	require.Equal(t, map[frame.Address]frame.DeviceStatus{frame.Address(1): frame.Running}, r.Known())
}

func TestDerivedViews(t *testing.T) {
	r := New(nil)
	r.Update(frame.Address(1), frame.Running)
	r.Update(frame.Address(2), frame.Bootloader)
	r.Update(frame.Address(3), frame.Resetting)
	r.Update(frame.Address(4), frame.Programming)

	require.ElementsMatch(t, []frame.Address{2}, r.Ready())
	require.ElementsMatch(t, []frame.Address{1, 4}, r.Running())
	require.ElementsMatch(t, []frame.Address{3}, r.Resetting())
}

func TestAllowListFiltersEverything(t *testing.T) {
	r := New([]frame.Address{1})
	r.Update(frame.Address(1), frame.Bootloader)
	r.Update(frame.Address(2), frame.Bootloader)

	known := r.Known()
	require.Len(t, known, 1)
	_, ok := known[frame.Address(2)]
	require.False(t, ok)
	require.False(t, r.Allowed(frame.Address(2)))
}

func TestSetOfflineNeverFromWireUpdate(t *testing.T) {
	r := New(nil)
	r.Update(frame.Address(1), frame.Bootloader)
	r.SetOffline(frame.Address(1))
	require.Equal(t, frame.Off, r.Known()[frame.Address(1)])
}
