// Package frame implements the wire frame codec: a header carrying the
// device address and protocol version, followed by a typed, positional
// payload. Encoding and decoding are pure and synchronous; the package
// owns no I/O.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Address is a 64-bit device address. Broadcast is the reserved all-ones
// value the gateway expands to every device on the network.
type Address uint64

// Broadcast is never a valid individual address.
const Broadcast Address = 0xFFFFFFFFFFFFFFFF

// String renders the address as uppercase hex.
func (a Address) String() string {
	return fmt.Sprintf("%016X", uint64(a))
}

// ProtocolVersion is the single byte the controller writes to the gateway
// immediately after opening the transport, and that every frame header
// carries.
const ProtocolVersion byte = 1

const headerLen = 1 + 8 // version + address

// Header carries the protocol version and the device address: source on
// inbound frames, destination (honoring Broadcast) on outbound ones. The
// address lives exclusively in the header, so payload decoders stay
// address-agnostic.
type Header struct {
	Version byte
	Address Address
}

func (h Header) encode(buf *bytes.Buffer) {
	buf.WriteByte(h.Version)
	var addrBuf [8]byte
	binary.LittleEndian.PutUint64(addrBuf[:], uint64(h.Address))
	buf.Write(addrBuf[:])
}

func decodeHeader(b []byte) (Header, []byte, error) {
	if len(b) < headerLen {
		return Header{}, nil, &Error{Reason: "short buffer for header"}
	}
	h := Header{
		Version: b[0],
		Address: Address(binary.LittleEndian.Uint64(b[1:9])),
	}
	return h, b[headerLen:], nil
}

// Payload is implemented by every positional wire payload type.
type Payload interface {
	Type() PayloadType
	encode(buf *bytes.Buffer)
	decode(b []byte) error
}

// Frame is a header plus a typed payload, as it appears on the wire before
// any transport-level framing (HDLC byte-stuffing, base64, ...) is applied.
type Frame struct {
	Header  Header
	Payload Payload
}

// Encode serializes the frame: header, one payload-type byte, then the
// payload body.
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	f.Header.encode(&buf)
	buf.WriteByte(byte(f.Payload.Type()))
	f.Payload.encode(&buf)
	return buf.Bytes()
}

// Decode parses a complete inner frame. Short buffers, unknown payload
// types, and declared-length overflows all produce an *Error; the stream
// is never re-synchronized by guessing, it's simply dropped by the caller.
func Decode(b []byte) (Frame, error) {
	header, rest, err := decodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	if len(rest) < 1 {
		return Frame{}, &Error{Reason: "short buffer for payload type"}
	}
	pt := PayloadType(rest[0])
	rest = rest[1:]
	if pt < RequestThreshold {
		return Frame{}, &Error{Reason: fmt.Sprintf("gateway-internal payload type 0x%02X", byte(pt)), GatewayInternal: true}
	}
	newPayload, ok := decoders[pt]
	if !ok {
		return Frame{}, &Error{Reason: fmt.Sprintf("unknown payload type 0x%02X", byte(pt)), UnknownType: true}
	}
	p := newPayload()
	if err := p.decode(rest); err != nil {
		return Frame{}, err
	}
	return Frame{Header: header, Payload: p}, nil
}
