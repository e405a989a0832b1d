// Package command implements the request/response state machines for
// status, start, stop, reset and message: build payload, send (broadcast
// or per-device), wait for a done predicate or a timeout, and return the
// acknowledged addresses. Waits poll the shared registry at a fixed
// cadence rather than blocking on channels: acks arrive as ordinary
// status notifications indistinguishable from unsolicited pushes, and the
// poll loop keeps the state machine observable and deterministic.
package command

import (
	"sync"
	"time"

	"github.com/openswarm-eu/swarmit/pkg/frame"
	"github.com/openswarm-eu/swarmit/pkg/registry"
)

const (
	// StatusTimeout bounds a status() collection window.
	StatusTimeout = 2 * time.Second
	// CommandTimeout bounds start()/stop() waits.
	CommandTimeout = 5 * time.Second
	// pollInterval is the predicate-wait cadence.
	pollInterval = 10 * time.Millisecond
)

// Sender is the minimal façade contract the engine needs to transmit a
// payload; pkg/adapter.Adapter satisfies it.
type Sender interface {
	Send(dst frame.Address, payload frame.Payload) error
}

// Engine exposes the five command operations over a registry and a
// sender. AllowList mirrors the controller's configured device scope: when
// empty, operations broadcast; otherwise they fan out to each allowed
// device individually.
type Engine struct {
	Registry  *registry.Registry
	Sender    Sender
	AllowList []frame.Address

	// StatusTimeout, CommandTimeout and PollInterval override the package
	// defaults when non-zero; tests shrink them to keep cases fast.
	StatusTimeout  time.Duration
	CommandTimeout time.Duration
	PollInterval   time.Duration

	mu         sync.Mutex
	statusWait *statusWait
}

func (e *Engine) statusTimeout() time.Duration {
	if e.StatusTimeout > 0 {
		return e.StatusTimeout
	}
	return StatusTimeout
}

func (e *Engine) commandTimeout() time.Duration {
	if e.CommandTimeout > 0 {
		return e.CommandTimeout
	}
	return CommandTimeout
}

func (e *Engine) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return pollInterval
}

// statusWait collects addresses that reply with a StatusNotification
// while a Status() call is in flight; it exists because status has no
// registry-state predicate to poll (every reply counts, regardless of what
// status it reports).
type statusWait struct {
	mu    sync.Mutex
	acked map[frame.Address]struct{}
}

func (w *statusWait) add(addr frame.Address) {
	w.mu.Lock()
	w.acked[addr] = struct{}{}
	w.mu.Unlock()
}

func (w *statusWait) snapshot() map[frame.Address]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[frame.Address]struct{}, len(w.acked))
	for a := range w.acked {
		out[a] = struct{}{}
	}
	return out
}

// OnStatusNotification is called by the controller façade for every
// inbound StatusNotification, in addition to its registry update. It
// records the source into any in-flight Status() wait.
func (e *Engine) OnStatusNotification(addr frame.Address) {
	e.mu.Lock()
	w := e.statusWait
	e.mu.Unlock()
	if w != nil {
		w.add(addr)
	}
}

// Status requests the status of the fleet and returns the registry
// snapshot restricted to the devices that replied within StatusTimeout.
func (e *Engine) Status() map[frame.Address]frame.DeviceStatus {
	w := &statusWait{acked: make(map[frame.Address]struct{})}
	e.mu.Lock()
	e.statusWait = w
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.statusWait = nil
		e.mu.Unlock()
	}()

	e.broadcastOrUnicast(func(dst frame.Address) {
		e.Sender.Send(dst, &frame.StatusRequestPayload{})
	})

	deadline := time.Now().Add(e.statusTimeout())
	for time.Now().Before(deadline) {
		time.Sleep(e.pollInterval())
	}

	known := e.Registry.Known()
	acked := w.snapshot()
	out := make(map[frame.Address]frame.DeviceStatus, len(acked))
	for addr := range acked {
		if st, ok := known[addr]; ok {
			out[addr] = st
		}
	}
	return out
}

// Start starts the application on every ready, allow-listed device (or
// broadcasts when the allow-list is empty) and waits for each to report
// Running. It returns the current set of devices now in Running, whether
// they transitioned this call or earlier.
func (e *Engine) Start() []frame.Address {
	return e.transition(
		e.Registry.Ready,
		frame.Running,
		func(dst frame.Address) error { return e.Sender.Send(dst, &frame.StartRequestPayload{}) },
	)
}

// Stop stops every running-or-resetting, allow-listed device (or
// broadcasts) and waits for each to report Bootloader. It returns the
// current set of devices now in Bootloader.
func (e *Engine) Stop() []frame.Address {
	prerequisite := func() []frame.Address {
		return append(e.Registry.Running(), e.Registry.Resetting()...)
	}
	return e.transition(
		prerequisite,
		frame.Bootloader,
		func(dst frame.Address) error { return e.Sender.Send(dst, &frame.StopRequestPayload{}) },
	)
}

// transition implements the shared start/stop shape: compute the
// prerequisite set, send to each qualifying target (or broadcast), then
// poll the registry until every target reports targetStatus or
// CommandTimeout elapses.
func (e *Engine) transition(prerequisite func() []frame.Address, targetStatus frame.DeviceStatus, send func(frame.Address) error) []frame.Address {
	pre := prerequisite()

	if len(e.AllowList) == 0 {
		send(frame.Broadcast)
	} else {
		preSet := toSet(pre)
		sent := 0
		for _, dst := range e.AllowList {
			if _, ok := preSet[dst]; !ok {
				continue
			}
			send(dst)
			sent++
		}
		if sent == 0 {
			// No allow-listed device was in the prerequisite state, so no
			// request went out and there is nothing to wait for.
			return nil
		}
	}

	deadline := time.Now().Add(e.commandTimeout())
	for {
		if e.reachedStatus(pre, targetStatus) || time.Now().After(deadline) {
			break
		}
		time.Sleep(e.pollInterval())
	}

	known := e.Registry.Known()
	var out []frame.Address
	for addr, st := range known {
		if st == targetStatus {
			out = append(out, addr)
		}
	}
	return out
}

func (e *Engine) reachedStatus(targets []frame.Address, status frame.DeviceStatus) bool {
	if len(targets) == 0 {
		return true
	}
	known := e.Registry.Known()
	for _, addr := range targets {
		if known[addr] != status {
			return false
		}
	}
	return true
}

// Reset sends a fire-and-forget reset request carrying the declared
// location to every allow-listed device, or broadcasts when the allow-list
// is empty. Reset has no prerequisite state, so no registry filtering is
// applied.
func (e *Engine) Reset(posX, posY int32) {
	e.broadcastOrUnicast(func(dst frame.Address) {
		e.Sender.Send(dst, &frame.ResetRequestPayload{PosX: posX, PosY: posY})
	})
}

// Message sends a fire-and-forget free-form text message, broadcast or
// per allow-listed device.
func (e *Engine) Message(text string) {
	e.broadcastOrUnicast(func(dst frame.Address) {
		e.Sender.Send(dst, frame.NewMessage(text))
	})
}

func (e *Engine) broadcastOrUnicast(send func(dst frame.Address)) {
	if len(e.AllowList) == 0 {
		send(frame.Broadcast)
		return
	}
	for _, dst := range e.AllowList {
		send(dst)
	}
}

func toSet(addrs []frame.Address) map[frame.Address]struct{} {
	out := make(map[frame.Address]struct{}, len(addrs))
	for _, a := range addrs {
		out[a] = struct{}{}
	}
	return out
}
