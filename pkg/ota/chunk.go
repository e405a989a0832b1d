// Package ota implements the over-the-air firmware transfer engine:
// chunking, SHA-256 hashing, the start-OTA handshake, and the per-chunk
// retry loop with per-device acknowledgment and hash-match tracking.
package ota

import "crypto/sha256"

// ChunkSize is the maximum payload size of a single OTA chunk.
const ChunkSize = 128

// Chunk is an immutable slice of firmware: Data is exactly Size bytes.
type Chunk struct {
	Index uint32
	Size  uint8
	Data  []byte
}

// ChunkFirmware splits firmware into ChunkSize-byte chunks (the last one
// possibly shorter) and returns them alongside the SHA-256 digest of the
// whole image, which is also the hash of the chunks concatenated in
// index order.
func ChunkFirmware(firmware []byte) ([]Chunk, [32]byte) {
	count := (len(firmware) + ChunkSize - 1) / ChunkSize
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(firmware) {
			end = len(firmware)
		}
		data := firmware[start:end]
		chunks = append(chunks, Chunk{
			Index: uint32(i),
			Size:  uint8(len(data)),
			Data:  data,
		})
	}
	return chunks, sha256.Sum256(firmware)
}
