package adapter

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openswarm-eu/swarmit/internal/swarmlog"
	"github.com/openswarm-eu/swarmit/pkg/frame"
)

const (
	upstreamTopic   = "/pydotbot/controller_to_edge"
	downstreamTopic = "/pydotbot/edge_to_controller"
)

// BrokerAdapter talks to the gateway over an MQTT broker, exchanging
// base64-encoded frame bytes on the two fixed topics. It subscribes to the
// downstream topic on every (re)connect, so a broker bounce resumes the
// stream without caller involvement.
type BrokerAdapter struct {
	host      string
	port      int
	useTLS    bool
	networkID uint16

	mu     sync.Mutex
	client mqtt.Client
	closed bool

	onFrame FrameHandler
	log     *swarmlog.Logger
}

// NewBrokerAdapter builds a broker adapter. networkID scopes logging only;
// the wire topics are fixed.
func NewBrokerAdapter(host string, port int, useTLS bool, networkID uint16, log *swarmlog.Logger) *BrokerAdapter {
	return &BrokerAdapter{host: host, port: port, useTLS: useTLS, networkID: networkID, log: log}
}

func (a *BrokerAdapter) Init(onFrame FrameHandler) error {
	a.onFrame = onFrame

	scheme := "tcp"
	if a.useTLS {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, a.host, a.port)).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if a.useTLS {
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.OnConnect = func(c mqtt.Client) {
		if tok := c.Subscribe(downstreamTopic, 0, a.onMessage); tok.Wait() && tok.Error() != nil {
			a.log.Error("subscribe failed", "topic", downstreamTopic, "err", tok.Error())
		}
	}

	a.client = mqtt.NewClient(opts)
	if tok := a.client.Connect(); tok.Wait() && tok.Error() != nil {
		return &Error{Op: "connect broker " + a.host, Err: tok.Error()}
	}

	if tok := a.client.Publish(upstreamTopic, 0, false, base64.StdEncoding.EncodeToString(handshake)); tok.Wait() && tok.Error() != nil {
		return &Error{Op: "write handshake", Err: tok.Error()}
	}
	a.log.Info("broker adapter connected", "host", a.host, "port", a.port, "network_id", a.networkID)
	return nil
}

func (a *BrokerAdapter) onMessage(_ mqtt.Client, msg mqtt.Message) {
	raw, err := base64.StdEncoding.DecodeString(string(msg.Payload()))
	if err != nil {
		a.log.Warn("dropping message with invalid base64", "err", err)
		return
	}
	f, err := frame.Decode(raw)
	if err != nil {
		logDecodeError(a.log, err)
		return
	}
	a.onFrame(f)
}

func (a *BrokerAdapter) Send(dst frame.Address, payload frame.Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("adapter: send on closed broker adapter")
	}
	f := frame.Frame{Header: frame.Header{Version: frame.ProtocolVersion, Address: dst}, Payload: payload}
	encoded := base64.StdEncoding.EncodeToString(f.Encode())
	tok := a.client.Publish(upstreamTopic, 0, false, encoded)
	tok.Wait()
	return tok.Error()
}

func (a *BrokerAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	tok := a.client.Publish(upstreamTopic, 0, false, base64.StdEncoding.EncodeToString([]byte{disconnectSentinel}))
	tok.Wait()
	a.client.Disconnect(250)
	return nil
}
