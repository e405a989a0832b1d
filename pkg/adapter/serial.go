package adapter

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/openswarm-eu/swarmit/internal/swarmlog"
	"github.com/openswarm-eu/swarmit/pkg/frame"
)

// SerialAdapter talks to the gateway over a local serial port, framing
// every outbound frame with HDLC byte-stuffing and running a receive
// worker that feeds the port byte-by-byte into an HDLCHandler.
type SerialAdapter struct {
	port     string
	baudRate int

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	closed bool

	onFrame FrameHandler
	log     *swarmlog.Logger
}

// NewSerialAdapter builds a serial adapter for the given port and baud
// rate; the transport is opened by Init, not here.
func NewSerialAdapter(port string, baudRate int, log *swarmlog.Logger) *SerialAdapter {
	return &SerialAdapter{port: port, baudRate: baudRate, log: log}
}

func (a *SerialAdapter) Init(onFrame FrameHandler) error {
	mode := &serial.Mode{BaudRate: a.baudRate}
	conn, err := serial.Open(a.port, mode)
	if err != nil {
		return &Error{Op: "open serial port " + a.port, Err: err}
	}
	a.conn = conn
	a.onFrame = onFrame

	if _, err := a.conn.Write(handshake); err != nil {
		a.conn.Close()
		return &Error{Op: "write handshake", Err: err}
	}

	go a.receiveLoop(conn)
	a.log.Info("serial adapter connected", "port", a.port, "baud", a.baudRate)
	return nil
}

func (a *SerialAdapter) receiveLoop(conn io.Reader) {
	handler := &HDLCHandler{}
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			a.log.Warn("serial read failed, receive loop exiting", "err", err)
			return
		}
		for _, b := range buf[:n] {
			handler.HandleByte(b)
			if handler.State != HDLCReady {
				continue
			}
			f, err := frame.Decode(handler.Payload)
			if err != nil {
				logDecodeError(a.log, err)
				handler.Reset()
				continue
			}
			a.onFrame(f)
			handler.Reset()
		}
	}
}

func (a *SerialAdapter) Send(dst frame.Address, payload frame.Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("adapter: send on closed serial adapter")
	}
	f := frame.Frame{Header: frame.Header{Version: frame.ProtocolVersion, Address: dst}, Payload: payload}
	_, err := a.conn.Write(hdlcEncode(f.Encode()))
	return err
}

func (a *SerialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.conn == nil {
		return nil
	}
	_, _ = a.conn.Write(hdlcEncode([]byte{disconnectSentinel}))
	return a.conn.Close()
}
