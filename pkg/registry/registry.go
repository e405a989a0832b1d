// Package registry holds the authoritative device status mapping and the
// derived ready/running/resetting views the command and OTA engines poll.
// Every read method returns a point-in-time snapshot, never a live
// reference into the map.
package registry

import (
	"sync"

	"github.com/openswarm-eu/swarmit/pkg/frame"
)

// Registry is safe for concurrent use: the receive worker calls Update
// while command threads call the read methods.
type Registry struct {
	mu     sync.Mutex
	status map[frame.Address]frame.DeviceStatus
	allow  map[frame.Address]struct{}
}

// New builds a registry. An empty allowList disables filtering entirely;
// a non-empty one restricts every derived view and Known() to those
// addresses only.
func New(allowList []frame.Address) *Registry {
	r := &Registry{
		status: make(map[frame.Address]frame.DeviceStatus),
	}
	if len(allowList) > 0 {
		r.allow = make(map[frame.Address]struct{}, len(allowList))
		for _, a := range allowList {
			r.allow[a] = struct{}{}
		}
	}
	return r
}

// Allowed reports whether addr passes the configured allow-list (always
// true when the list is empty).
func (r *Registry) Allowed(addr frame.Address) bool {
	if r.allow == nil {
		return true
	}
	_, ok := r.allow[addr]
	return ok
}

// Update applies a status notification. Together with SetOffline it is
// the only way a device transitions in the registry.
func (r *Registry) Update(addr frame.Address, status frame.DeviceStatus) {
	if !r.Allowed(addr) {
		return
	}
	r.mu.Lock()
	r.status[addr] = status
	r.mu.Unlock()
}

// SetOffline synthesizes an Off status for a device the caller considers
// unresponsive after a poll timeout. This is the only caller-side
// transition the registry accepts; it is never triggered by wire data.
func (r *Registry) SetOffline(addr frame.Address) {
	if !r.Allowed(addr) {
		return
	}
	r.mu.Lock()
	r.status[addr] = frame.Off
	r.mu.Unlock()
}

// Known returns a snapshot of every device the controller has heard from.
func (r *Registry) Known() map[frame.Address]frame.DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[frame.Address]frame.DeviceStatus, len(r.status))
	for addr, st := range r.status {
		out[addr] = st
	}
	return out
}

// Ready returns every device whose status is Bootloader.
func (r *Registry) Ready() []frame.Address {
	return r.filter(func(s frame.DeviceStatus) bool { return s == frame.Bootloader })
}

// Running returns every device whose status is Running or Programming.
func (r *Registry) Running() []frame.Address {
	return r.filter(func(s frame.DeviceStatus) bool {
		return s == frame.Running || s == frame.Programming
	})
}

// Resetting returns every device whose status is Resetting.
func (r *Registry) Resetting() []frame.Address {
	return r.filter(func(s frame.DeviceStatus) bool { return s == frame.Resetting })
}

func (r *Registry) filter(pred func(frame.DeviceStatus) bool) []frame.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []frame.Address
	for addr, st := range r.status {
		if pred(st) {
			out = append(out, addr)
		}
	}
	return out
}
