// Package controller wires the frame codec, gateway adapter, device
// registry, command engine and OTA engine into the single entry point a
// CLI or other front-end drives. It owns the inbound dispatch table that
// routes each notification to the component that tracks it.
package controller

import (
	"context"
	"sync"

	"github.com/openswarm-eu/swarmit/internal/swarmlog"
	"github.com/openswarm-eu/swarmit/pkg/adapter"
	"github.com/openswarm-eu/swarmit/pkg/command"
	"github.com/openswarm-eu/swarmit/pkg/frame"
	"github.com/openswarm-eu/swarmit/pkg/ota"
	"github.com/openswarm-eu/swarmit/pkg/registry"
)

// Event is a GPIO or log event notification surfaced to the caller's sink,
// already filtered by the registry's allow-list.
type Event struct {
	Source    frame.Address
	Kind      frame.PayloadType
	Timestamp uint32
	Data      []byte
}

// EventSink receives every allow-listed event notification as it arrives.
type EventSink func(Event)

// Controller is the single entry point a CLI builds against: Status,
// Start, Stop, Reset, Message and the OTA pair, all backed by one shared
// registry fed from one adapter's receive worker.
type Controller struct {
	Registry *registry.Registry
	Command  *command.Engine
	OTA      *ota.Engine

	// Verbose logs every received frame at info level. Set before Start.
	Verbose bool

	adapter adapter.Adapter
	log     *swarmlog.Logger

	mu   sync.Mutex
	sink EventSink
}

// New builds a Controller around an already-constructed adapter. allowList
// restricts both the registry and the command/OTA engines to those
// addresses; an empty list disables filtering, so every device on the
// network is in scope.
func New(a adapter.Adapter, allowList []frame.Address, log *swarmlog.Logger) *Controller {
	if log == nil {
		log = swarmlog.Default("controller")
	}
	reg := registry.New(allowList)
	c := &Controller{
		Registry: reg,
		Command:  &command.Engine{Registry: reg, Sender: a, AllowList: allowList},
		OTA:      &ota.Engine{Registry: reg, Sender: a, AllowList: allowList, Log: log},
		adapter:  a,
		log:      log,
	}
	return c
}

// OnEvent registers the sink that receives GPIO and log event
// notifications. Passing nil silences events.
func (c *Controller) OnEvent(sink EventSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// Start opens the adapter and begins dispatching inbound frames.
func (c *Controller) Start() error {
	return c.adapter.Init(c.onFrame)
}

// Terminate closes the adapter, telling the gateway the controller is
// going away.
func (c *Controller) Terminate() error {
	return c.adapter.Close()
}

// Monitor blocks until ctx is cancelled while the receive worker keeps
// dispatching notifications; the caller registers an event sink beforehand
// and cancels the context on process interrupt.
func (c *Controller) Monitor(ctx context.Context) {
	<-ctx.Done()
}

// onFrame is the adapter's FrameHandler: it updates the registry and
// engines for every notification, and forwards events to the sink. It
// never panics on an unrecognized payload; malformed and below-threshold
// traffic was already dropped by the frame codec and the adapter.
func (c *Controller) onFrame(f frame.Frame) {
	if c.Verbose {
		c.log.Info("frame received", "source", f.Header.Address.String(), "payload_type", f.Payload.Type().String())
	}
	if !c.Registry.Allowed(f.Header.Address) {
		return
	}

	switch p := f.Payload.(type) {
	case *frame.StatusNotificationPayload:
		c.Registry.Update(f.Header.Address, p.Status)
		c.Command.OnStatusNotification(f.Header.Address)
	case *frame.OTAStartAckPayload:
		c.OTA.OnOTAStartAck(f.Header.Address)
	case *frame.OTAChunkAckPayload:
		c.OTA.OnOTAChunkAck(f.Header.Address, p.Index, p.HashesMatch)
	case *frame.EventPayload:
		c.dispatchEvent(f.Header.Address, p)
	default:
		if f.Payload.Type() < frame.RequestThreshold {
			return
		}
		c.log.Warn("unhandled payload", "type", f.Payload.Type().String(), "source", f.Header.Address.String())
	}
}

func (c *Controller) dispatchEvent(src frame.Address, p *frame.EventPayload) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		return
	}
	sink(Event{Source: src, Kind: p.Type(), Timestamp: p.Timestamp, Data: p.Data})
}
