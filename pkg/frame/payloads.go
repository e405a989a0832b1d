package frame

import (
	"bytes"
	"encoding/binary"
)

// decoders is the dispatch table from payload-type code to a fresh,
// zero-valued decoder instance. The payload set is fixed, so there is no
// dynamic registration.
var decoders = map[PayloadType]func() Payload{
	RequestStatus:           func() Payload { return &StatusRequestPayload{} },
	RequestStart:            func() Payload { return &StartRequestPayload{} },
	RequestStop:             func() Payload { return &StopRequestPayload{} },
	RequestOTAStart:         func() Payload { return &OTAStartRequestPayload{} },
	RequestOTAChunk:         func() Payload { return &OTAChunkRequestPayload{} },
	NotificationStatus:      func() Payload { return &StatusNotificationPayload{} },
	NotificationOTAStartAck: func() Payload { return &OTAStartAckPayload{} },
	NotificationOTAChunkAck: func() Payload { return &OTAChunkAckPayload{} },
	NotificationEventGPIO:   func() Payload { return &EventPayload{payloadType: NotificationEventGPIO} },
	NotificationEventLog:    func() Payload { return &EventPayload{payloadType: NotificationEventLog} },
	MessagePayloadType:      func() Payload { return &MessagePayload{} },
	RequestReset:            func() Payload { return &ResetRequestPayload{} },
}

// StatusRequestPayload, StartRequestPayload and StopRequestPayload carry no
// body; the destination lives in the header.

type StatusRequestPayload struct{}

func (p *StatusRequestPayload) Type() PayloadType    { return RequestStatus }
func (p *StatusRequestPayload) encode(*bytes.Buffer) {}
func (p *StatusRequestPayload) decode([]byte) error  { return nil }

type StartRequestPayload struct{}

func (p *StartRequestPayload) Type() PayloadType    { return RequestStart }
func (p *StartRequestPayload) encode(*bytes.Buffer) {}
func (p *StartRequestPayload) decode([]byte) error  { return nil }

type StopRequestPayload struct{}

func (p *StopRequestPayload) Type() PayloadType    { return RequestStop }
func (p *StopRequestPayload) encode(*bytes.Buffer) {}
func (p *StopRequestPayload) decode([]byte) error  { return nil }

// ResetRequestPayload attaches the declared reset location to the reset
// request: pos_x | pos_y, both signed 32-bit micro-units.
type ResetRequestPayload struct {
	PosX int32
	PosY int32
}

func (p *ResetRequestPayload) Type() PayloadType { return RequestReset }

func (p *ResetRequestPayload) encode(buf *bytes.Buffer) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(p.PosX))
	buf.Write(tmp[:])
	binary.LittleEndian.PutUint32(tmp[:], uint32(p.PosY))
	buf.Write(tmp[:])
}

func (p *ResetRequestPayload) decode(b []byte) error {
	if len(b) < 8 {
		return &Error{Reason: "short buffer for reset request"}
	}
	p.PosX = int32(binary.LittleEndian.Uint32(b[0:4]))
	p.PosY = int32(binary.LittleEndian.Uint32(b[4:8]))
	return nil
}

// OTAStartRequestPayload: fw_length | fw_chunk_count | fw_hash(32).
type OTAStartRequestPayload struct {
	FwLength     uint32
	FwChunkCount uint32
	FwHash       [32]byte
}

func (p *OTAStartRequestPayload) Type() PayloadType { return RequestOTAStart }

func (p *OTAStartRequestPayload) encode(buf *bytes.Buffer) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], p.FwLength)
	buf.Write(tmp[:])
	binary.LittleEndian.PutUint32(tmp[:], p.FwChunkCount)
	buf.Write(tmp[:])
	buf.Write(p.FwHash[:])
}

func (p *OTAStartRequestPayload) decode(b []byte) error {
	if len(b) < 4+4+32 {
		return &Error{Reason: "short buffer for ota start request"}
	}
	p.FwLength = binary.LittleEndian.Uint32(b[0:4])
	p.FwChunkCount = binary.LittleEndian.Uint32(b[4:8])
	copy(p.FwHash[:], b[8:40])
	return nil
}

// OTAChunkRequestPayload: index | count | chunk(count bytes).
type OTAChunkRequestPayload struct {
	Index uint32
	Count byte
	Chunk []byte
}

func (p *OTAChunkRequestPayload) Type() PayloadType { return RequestOTAChunk }

func (p *OTAChunkRequestPayload) encode(buf *bytes.Buffer) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], p.Index)
	buf.Write(tmp[:])
	buf.WriteByte(p.Count)
	buf.Write(p.Chunk)
}

func (p *OTAChunkRequestPayload) decode(b []byte) error {
	if len(b) < 5 {
		return &Error{Reason: "short buffer for ota chunk request"}
	}
	p.Index = binary.LittleEndian.Uint32(b[0:4])
	p.Count = b[4]
	rest := b[5:]
	if len(rest) < int(p.Count) {
		return &Error{Reason: "declared chunk length overflow"}
	}
	p.Chunk = append([]byte(nil), rest[:p.Count]...)
	return nil
}

// StatusNotificationPayload: status (u8).
type StatusNotificationPayload struct {
	Status DeviceStatus
}

func (p *StatusNotificationPayload) Type() PayloadType { return NotificationStatus }

func (p *StatusNotificationPayload) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(p.Status))
}

func (p *StatusNotificationPayload) decode(b []byte) error {
	if len(b) < 1 {
		return &Error{Reason: "short buffer for status notification"}
	}
	p.Status = DeviceStatus(b[0])
	return nil
}

// OTAStartAckPayload carries no body; the source address lives in the header.
type OTAStartAckPayload struct{}

func (p *OTAStartAckPayload) Type() PayloadType    { return NotificationOTAStartAck }
func (p *OTAStartAckPayload) encode(*bytes.Buffer) {}
func (p *OTAStartAckPayload) decode([]byte) error  { return nil }

// OTAChunkAckPayload: index | hashes_match (u8).
type OTAChunkAckPayload struct {
	Index       uint32
	HashesMatch bool
}

func (p *OTAChunkAckPayload) Type() PayloadType { return NotificationOTAChunkAck }

func (p *OTAChunkAckPayload) encode(buf *bytes.Buffer) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], p.Index)
	buf.Write(tmp[:])
	if p.HashesMatch {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func (p *OTAChunkAckPayload) decode(b []byte) error {
	if len(b) < 5 {
		return &Error{Reason: "short buffer for ota chunk ack"}
	}
	p.Index = binary.LittleEndian.Uint32(b[0:4])
	p.HashesMatch = b[4] != 0
	return nil
}

// EventPayload covers both GPIO and Log event notifications: timestamp |
// count | data(count bytes). payloadType distinguishes the two on encode;
// on decode it is stamped by the factory in decoders.
type EventPayload struct {
	payloadType PayloadType
	Timestamp   uint32
	Count       byte
	Data        []byte
}

func (p *EventPayload) Type() PayloadType { return p.payloadType }

func (p *EventPayload) encode(buf *bytes.Buffer) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], p.Timestamp)
	buf.Write(tmp[:])
	buf.WriteByte(p.Count)
	buf.Write(p.Data)
}

func (p *EventPayload) decode(b []byte) error {
	if len(b) < 5 {
		return &Error{Reason: "short buffer for event notification"}
	}
	p.Timestamp = binary.LittleEndian.Uint32(b[0:4])
	p.Count = b[4]
	rest := b[5:]
	if len(rest) < int(p.Count) {
		return &Error{Reason: "declared event data length overflow"}
	}
	p.Data = append([]byte(nil), rest[:p.Count]...)
	return nil
}

// NewGPIOEvent and NewLogEvent are convenience constructors, used by tests,
// that build event payloads with the right type tag.
func NewGPIOEvent(timestamp uint32, data []byte) *EventPayload {
	return &EventPayload{payloadType: NotificationEventGPIO, Timestamp: timestamp, Count: byte(len(data)), Data: data}
}

func NewLogEvent(timestamp uint32, data []byte) *EventPayload {
	return &EventPayload{payloadType: NotificationEventLog, Timestamp: timestamp, Count: byte(len(data)), Data: data}
}

// MessagePayload: count | message(count bytes).
type MessagePayload struct {
	Count   byte
	Message []byte
}

func (p *MessagePayload) Type() PayloadType { return MessagePayloadType }

func (p *MessagePayload) encode(buf *bytes.Buffer) {
	buf.WriteByte(p.Count)
	buf.Write(p.Message)
}

func (p *MessagePayload) decode(b []byte) error {
	if len(b) < 1 {
		return &Error{Reason: "short buffer for message"}
	}
	p.Count = b[0]
	rest := b[1:]
	if len(rest) < int(p.Count) {
		return &Error{Reason: "declared message length overflow"}
	}
	p.Message = append([]byte(nil), rest[:p.Count]...)
	return nil
}

// NewMessage builds a message payload from a string, stamping Count.
func NewMessage(text string) *MessagePayload {
	data := []byte(text)
	return &MessagePayload{Count: byte(len(data)), Message: data}
}
