package ota

import (
	"sync"

	"github.com/openswarm-eu/swarmit/pkg/frame"
)

// ChunkStatus is one device's view of one chunk: has it been acknowledged,
// and how many times has it been resent (the initial send is not counted).
type ChunkStatus struct {
	Index   uint32
	Size    uint8
	Acked   bool
	Retries int
}

// TransferStatus is one device's full OTA transfer state, exposed to the
// controller and CLI for progress reporting.
type TransferStatus struct {
	Chunks      []ChunkStatus
	HashesMatch bool
}

func (s *TransferStatus) acked() int {
	n := 0
	for _, c := range s.Chunks {
		if c.Acked {
			n++
		}
	}
	return n
}

func (s *TransferStatus) complete() bool {
	return s.acked() == len(s.Chunks)
}

// session is the in-flight state of a single StartOTA+Transfer call. A new
// session replaces any previous one; the engine does not support concurrent
// transfers. Its maps are written by the receive worker (onStartAck,
// onChunkAck) and read/written by the command thread polling in the
// transfer loop, so every access goes through mu.
type session struct {
	chunks  []Chunk
	fwHash  [32]byte
	targets []frame.Address

	mu         sync.Mutex
	startAcked map[frame.Address]struct{}
	transfer   map[frame.Address]*TransferStatus
}

func newSession(chunks []Chunk, fwHash [32]byte, targets []frame.Address) *session {
	transfer := make(map[frame.Address]*TransferStatus, len(targets))
	for _, addr := range targets {
		cs := make([]ChunkStatus, len(chunks))
		for i, c := range chunks {
			cs[i] = ChunkStatus{Index: c.Index, Size: c.Size}
		}
		transfer[addr] = &TransferStatus{Chunks: cs}
	}
	return &session{
		chunks:     chunks,
		fwHash:     fwHash,
		targets:    targets,
		startAcked: make(map[frame.Address]struct{}),
		transfer:   transfer,
	}
}

func (s *session) onStartAck(addr frame.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfer[addr]; !ok {
		return
	}
	s.startAcked[addr] = struct{}{}
}

func (s *session) startAckedAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range s.targets {
		if _, ok := s.startAcked[addr]; !ok {
			return false
		}
	}
	return true
}

// onChunkAck records an ack. It reports false only for an out-of-range
// index from a known target, so the engine can log it; acks from devices
// outside the transfer are silently ignored.
func (s *session) onChunkAck(addr frame.Address, index uint32, hashesMatch bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfer[addr]
	if !ok {
		return true
	}
	if int(index) >= len(t.Chunks) {
		return false
	}
	t.Chunks[index].Acked = true
	t.HashesMatch = hashesMatch
	return true
}

func (s *session) chunkAckedBy(index uint32, addr frame.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkAckedByLocked(index, addr)
}

func (s *session) chunkAckedByLocked(index uint32, addr frame.Address) bool {
	t, ok := s.transfer[addr]
	if !ok || int(index) >= len(t.Chunks) {
		return false
	}
	return t.Chunks[index].Acked
}

func (s *session) allAckedChunk(index uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range s.targets {
		if !s.chunkAckedByLocked(index, addr) {
			return false
		}
	}
	return true
}

func (s *session) bumpRetry(index uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transfer {
		if int(index) < len(t.Chunks) && !t.Chunks[index].Acked {
			t.Chunks[index].Retries++
		}
	}
}

func (s *session) maxRetries(index uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, addr := range s.targets {
		t, ok := s.transfer[addr]
		if !ok || int(index) >= len(t.Chunks) {
			continue
		}
		if t.Chunks[index].Acked {
			continue
		}
		if t.Chunks[index].Retries > max {
			max = t.Chunks[index].Retries
		}
	}
	return max
}

func (s *session) snapshot() map[frame.Address]TransferStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[frame.Address]TransferStatus, len(s.transfer))
	for addr, t := range s.transfer {
		cp := *t
		cp.Chunks = append([]ChunkStatus(nil), t.Chunks...)
		out[addr] = cp
	}
	return out
}
