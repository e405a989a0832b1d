// Package adapter implements the gateway transport: a polymorphic
// bidirectional byte/frame link to the gateway, hot-swappable between
// a local serial link and a networked broker. Both variants share one
// contract: Init registers the inbound-frame callback and performs the
// one-shot handshake, Send transmits an outbound frame, Close sends the
// disconnect sentinel and releases the transport.
package adapter

import (
	"errors"

	"github.com/openswarm-eu/swarmit/internal/swarmlog"
	"github.com/openswarm-eu/swarmit/pkg/frame"
)

// FrameHandler is invoked synchronously by the receive worker for every
// frame that parses successfully.
type FrameHandler func(frame.Frame)

// Adapter is the gateway adapter contract both variants satisfy.
type Adapter interface {
	// Init opens the transport, sends the one-shot handshake byte, and
	// registers onFrame to be called for every successfully parsed frame.
	Init(onFrame FrameHandler) error
	// Send transmits payload addressed to dst (honoring frame.Broadcast).
	// Both variants carry the destination in the frame header.
	Send(dst frame.Address, payload frame.Payload) error
	// Close sends the disconnect sentinel and releases the transport. A
	// closed adapter rejects further sends.
	Close() error
}

// disconnectSentinel is the one-byte frame the adapter writes on Close to
// tell the gateway the controller is going away.
const disconnectSentinel byte = 0xFE

// handshake is the single protocol-version byte Init writes immediately
// after opening the transport so the gateway unmutes its downstream
// traffic. It goes out raw, outside any transport framing.
var handshake = []byte{frame.ProtocolVersion}

// Error is raised to the caller for transport open failures: serial
// port missing, broker unreachable. Mid-stream failures are never wrapped
// in this type; they are logged and the offending frame dropped.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "adapter: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// logDecodeError routes a frame parse failure to the right log level:
// gateway-internal traffic is dropped silently, unknown payload types above
// the request threshold log at error level, everything else at warning.
func logDecodeError(log *swarmlog.Logger, err error) {
	var fe *frame.Error
	if errors.As(err, &fe) {
		if fe.GatewayInternal {
			return
		}
		if fe.UnknownType {
			log.Error("dropping frame with unknown payload type", "err", err)
			return
		}
	}
	log.Warn("dropping frame with parse error", "err", err)
}
