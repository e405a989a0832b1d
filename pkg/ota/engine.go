package ota

import (
	"sync"
	"time"

	"github.com/openswarm-eu/swarmit/internal/swarmlog"
	"github.com/openswarm-eu/swarmit/pkg/frame"
	"github.com/openswarm-eu/swarmit/pkg/registry"
)

const (
	// ChunkTimeout bounds how long the engine waits for a chunk ack before
	// resending.
	ChunkTimeout = 500 * time.Millisecond
	// ChunkRetries is the number of send attempts for a chunk before the
	// engine gives up on it and moves on. The initial send counts as
	// attempt 1, so a chunk is sent at most ChunkRetries times in total.
	ChunkRetries = 5
	// StartAckTimeout bounds the OTAStartRequest handshake.
	StartAckTimeout = 5 * time.Second
	pollInterval    = 10 * time.Millisecond
)

// Sender is the minimal façade contract the engine needs to transmit a
// payload; pkg/adapter.Adapter and pkg/command.Sender both satisfy it.
type Sender interface {
	Send(dst frame.Address, payload frame.Payload) error
}

// Error reports a failed OTA phase, e.g. a start handshake that some
// targets never acknowledged, or a firmware hash that a device reported as
// mismatched after transfer.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "ota: " + e.Reason }

// Engine drives the OTA start handshake and the chunked transfer loop: a
// broadcast or per-device OTAStartRequest gated on readiness, followed by
// a strictly sequential chunk loop that retries unacknowledged chunks up
// to ChunkRetries sends before giving up on that chunk.
type Engine struct {
	Registry *registry.Registry
	Sender   Sender

	// AllowList restricts the transfer to specific devices; empty means
	// every ready device in the registry.
	AllowList []frame.Address

	ChunkTimeout    time.Duration
	ChunkRetries    int
	StartAckTimeout time.Duration
	PollInterval    time.Duration

	// Log, when set, receives the engine's protocol warnings.
	Log *swarmlog.Logger

	// Progress, when set, is called after every chunk is sent (acked or
	// given up on) with the count done and the transfer total, so a CLI
	// can render a progress line without the engine knowing anything
	// about terminals.
	Progress func(done, total int)

	mu      sync.Mutex
	session *session
}

func (e *Engine) chunkTimeout() time.Duration {
	if e.ChunkTimeout > 0 {
		return e.ChunkTimeout
	}
	return ChunkTimeout
}

func (e *Engine) chunkRetries() int {
	if e.ChunkRetries > 0 {
		return e.ChunkRetries
	}
	return ChunkRetries
}

func (e *Engine) startAckTimeout() time.Duration {
	if e.StartAckTimeout > 0 {
		return e.StartAckTimeout
	}
	return StartAckTimeout
}

func (e *Engine) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return pollInterval
}

// targets returns the ready devices this transfer applies to: the
// allow-list intersected with readiness when an allow-list is configured,
// otherwise every ready device. A transfer is never started for a device
// outside the ready set; the filter is silent.
func (e *Engine) targets() []frame.Address {
	ready := e.Registry.Ready()
	if len(e.AllowList) == 0 {
		return ready
	}
	readySet := make(map[frame.Address]struct{}, len(ready))
	for _, a := range ready {
		readySet[a] = struct{}{}
	}
	var out []frame.Address
	for _, a := range e.AllowList {
		if _, ok := readySet[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// OnOTAStartAck is called by the controller façade on every inbound
// OTAStartAck.
func (e *Engine) OnOTAStartAck(addr frame.Address) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s != nil {
		s.onStartAck(addr)
	}
}

// OnOTAChunkAck is called by the controller façade on every inbound
// OTAChunkAck. An ack whose index is outside the transfer is logged at
// warning level and discarded without touching the session state.
func (e *Engine) OnOTAChunkAck(addr frame.Address, index uint32, hashesMatch bool) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return
	}
	if !s.onChunkAck(addr, index, hashesMatch) && e.Log != nil {
		e.Log.Warn("discarding chunk ack with out-of-range index", "device", addr.String(), "index", index)
	}
}

// StartOTA chunks the firmware image, broadcasts (or fans out) the
// OTAStartRequest handshake, and waits for every target to acknowledge. It
// returns an error if any target fails to ack within StartAckTimeout. The
// session is kept either way, so Transfer can still be called; it sends
// to and waits on every target, including those that did not ack.
func (e *Engine) StartOTA(firmware []byte) error {
	if len(firmware) == 0 {
		return &Error{Reason: "empty firmware image"}
	}
	chunks, hash := ChunkFirmware(firmware)
	targets := e.targets()

	s := newSession(chunks, hash, targets)
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()

	start := &frame.OTAStartRequestPayload{
		FwLength:     uint32(len(firmware)),
		FwChunkCount: uint32(len(chunks)),
		FwHash:       hash,
	}
	if len(e.AllowList) == 0 {
		e.Sender.Send(frame.Broadcast, start)
	} else {
		for _, dst := range targets {
			e.Sender.Send(dst, start)
		}
	}

	deadline := time.Now().Add(e.startAckTimeout())
	for {
		if s.startAckedAll() || time.Now().After(deadline) {
			break
		}
		time.Sleep(e.pollInterval())
	}

	if !s.startAckedAll() {
		return &Error{Reason: "not every target acknowledged OTAStartRequest"}
	}
	return nil
}

// Transfer sends every chunk in order, resending a chunk each time not
// every target has acked it within ChunkTimeout, up to ChunkRetries sends
// in total, then moving on regardless. It returns the final per-device
// transfer status and an error naming any device whose hash check failed
// or any chunk that was never fully acknowledged.
func (e *Engine) Transfer() (map[frame.Address]TransferStatus, error) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil, &Error{Reason: "transfer called before StartOTA"}
	}

	for _, c := range s.chunks {
		e.sendChunk(s, c)
		e.waitForChunk(s, c.Index)
		if e.Progress != nil {
			e.Progress(int(c.Index)+1, len(s.chunks))
		}
	}

	result := s.snapshot()
	for addr, t := range result {
		if !t.complete() {
			return result, &Error{Reason: "device " + addr.String() + " did not acknowledge every chunk"}
		}
		if !t.HashesMatch {
			return result, &Error{Reason: "device " + addr.String() + " reported a firmware hash mismatch"}
		}
	}
	return result, nil
}

func (e *Engine) sendChunk(s *session, c Chunk) {
	payload := &frame.OTAChunkRequestPayload{Index: c.Index, Count: c.Size, Chunk: c.Data}
	if len(e.AllowList) == 0 {
		e.Sender.Send(frame.Broadcast, payload)
		return
	}
	for _, dst := range s.targets {
		if s.chunkAckedBy(c.Index, dst) {
			continue
		}
		e.Sender.Send(dst, payload)
	}
}

func (e *Engine) waitForChunk(s *session, index uint32) {
	deadline := time.Now().Add(e.chunkTimeout())
	for {
		if s.allAckedChunk(index) {
			return
		}
		if time.Now().After(deadline) {
			if s.maxRetries(index) >= e.chunkRetries()-1 {
				return
			}
			s.bumpRetry(index)
			e.sendChunk(s, s.chunks[index])
			deadline = time.Now().Add(e.chunkTimeout())
			continue
		}
		time.Sleep(e.pollInterval())
	}
}
