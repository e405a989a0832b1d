package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripStatusNotification(t *testing.T) {
	original := Frame{
		Header:  Header{Version: ProtocolVersion, Address: Address(0x01)},
		Payload: &StatusNotificationPayload{Status: Running},
	}
	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	require.Equal(t, original.Header, decoded.Header)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestRoundTripOTAStartRequest(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	original := Frame{
		Header: Header{Version: ProtocolVersion, Address: Broadcast},
		Payload: &OTAStartRequestPayload{
			FwLength:     130,
			FwChunkCount: 2,
			FwHash:       hash,
		},
	}
	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestRoundTripOTAChunkRequest(t *testing.T) {
	original := Frame{
		Header: Header{Version: ProtocolVersion, Address: Address(2)},
		Payload: &OTAChunkRequestPayload{
			Index: 1,
			Count: 2,
			Chunk: []byte{0xAB, 0xAB},
		},
	}
	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestRoundTripOTAChunkAck(t *testing.T) {
	original := Frame{
		Header:  Header{Version: ProtocolVersion, Address: Address(1)},
		Payload: &OTAChunkAckPayload{Index: 5, HashesMatch: true},
	}
	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestRoundTripMessage(t *testing.T) {
	original := Frame{
		Header:  Header{Version: ProtocolVersion, Address: Broadcast},
		Payload: NewMessage("hello swarm"),
	}
	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestRoundTripLogEvent(t *testing.T) {
	original := Frame{
		Header:  Header{Version: ProtocolVersion, Address: Address(9)},
		Payload: NewLogEvent(1234, []byte("boot ok")),
	}
	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestRoundTripResetRequest(t *testing.T) {
	original := Frame{
		Header:  Header{Version: ProtocolVersion, Address: Address(3)},
		Payload: &ResetRequestPayload{PosX: -1000, PosY: 2500},
	}
	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	require.Equal(t, original.Payload, decoded.Payload)
}

func TestDecodeShortBufferIsError(t *testing.T) {
	_, err := Decode([]byte{0x01})
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
}

func TestDecodeUnknownPayloadTypeIsError(t *testing.T) {
	buf := make([]byte, headerLen)
	buf[0] = ProtocolVersion
	buf = append(buf, 0xFF)
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeDeclaredLengthOverflowIsError(t *testing.T) {
	buf := make([]byte, headerLen)
	buf[0] = ProtocolVersion
	buf = append(buf, byte(RequestOTAChunk))
	// index (4 bytes) + count=10 but no chunk data follows
	buf = append(buf, 0, 0, 0, 0, 10)
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeGatewayInternalTypeIsFlagged(t *testing.T) {
	buf := make([]byte, headerLen)
	buf[0] = ProtocolVersion
	buf = append(buf, 0x10)
	_, err := Decode(buf)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.True(t, fe.GatewayInternal)
	require.False(t, fe.UnknownType)
}

func TestBroadcastAddressString(t *testing.T) {
	require.Equal(t, "FFFFFFFFFFFFFFFF", Broadcast.String())
}
