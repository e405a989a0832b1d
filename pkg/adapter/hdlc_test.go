package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHDLCRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x7E, 0x02, 0x7D, 0x03}
	encoded := hdlcEncode(payload)

	h := &HDLCHandler{}
	for _, b := range encoded {
		h.HandleByte(b)
	}
	require.Equal(t, HDLCReady, h.State)
	require.Equal(t, payload, h.Payload)
}

func TestHDLCDropsBadChecksum(t *testing.T) {
	payload := []byte{0xAA, 0xBB}
	encoded := hdlcEncode(payload)
	encoded[len(encoded)-3] ^= 0xFF // corrupt a trailing CRC byte

	h := &HDLCHandler{}
	for _, b := range encoded {
		h.HandleByte(b)
	}
	require.NotEqual(t, HDLCReady, h.State)
}

func TestHDLCIgnoresBytesBeforeFirstFlag(t *testing.T) {
	h := &HDLCHandler{}
	h.HandleByte(0x99)
	h.HandleByte(0x98)
	require.Equal(t, HDLCIdle, h.State)
}

func TestHDLCResetAllowsNextFrame(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	encoded := hdlcEncode(payload)

	h := &HDLCHandler{}
	for _, b := range encoded {
		h.HandleByte(b)
	}
	require.Equal(t, HDLCReady, h.State)
	h.Reset()
	require.Equal(t, HDLCIdle, h.State)

	for _, b := range encoded {
		h.HandleByte(b)
	}
	require.Equal(t, payload, h.Payload)
}
