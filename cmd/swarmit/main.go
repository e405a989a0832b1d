// Command swarmit is the CLI front-end for the controller: one subcommand
// per fleet operation, plus flash and monitor.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/openswarm-eu/swarmit/internal/swarmlog"
	"github.com/openswarm-eu/swarmit/pkg/adapter"
	"github.com/openswarm-eu/swarmit/pkg/controller"
	"github.com/openswarm-eu/swarmit/pkg/frame"
)

var (
	app = kingpin.New("swarmit", "Control and OTA-update a swarm of radio-addressed devices")

	port      = app.Flag("port", "Serial port device").Short('p').String()
	baudRate  = app.Flag("baudrate", "Serial port baudrate").Short('b').Default("115200").Uint()
	edge      = app.Flag("edge", "MQTT broker host:port to use instead of a serial port").Short('e').String()
	edgeTLS   = app.Flag("edge-tls", "Use TLS for the MQTT broker connection").Bool()
	networkID = app.Flag("network-id", "Network identifier for the broker adapter").Default("0").Uint16()
	devices   = app.Flag("devices", "Comma-separated allow-list of device addresses (hex)").Short('d').String()
	verbose   = app.Flag("verbose", "Log every received frame").Short('v').Bool()

	statusCmd  = app.Command("status", "Report the status of every reachable device")
	startCmd   = app.Command("start", "Start the application on ready devices")
	stopCmd    = app.Command("stop", "Stop running devices back to the bootloader")
	resetCmd   = app.Command("reset", "Reset device position")
	resetPosX  = resetCmd.Flag("x", "Declared X position").Default("0").Int32()
	resetPosY  = resetCmd.Flag("y", "Declared Y position").Default("0").Int32()
	messageCmd = app.Command("message", "Send a free-form text message")
	messageArg = messageCmd.Arg("text", "Message text").Required().String()
	flashCmd   = app.Command("flash", "Flash a firmware image over the air")
	flashFile  = flashCmd.Arg("firmware", "Path to the firmware image").Required().String()
	chunkWait  = flashCmd.Flag("chunk-timeout", "Per-chunk ack timeout").Default("500ms").Duration()
	chunkRetry = flashCmd.Flag("chunk-retries", "Chunk send attempts before giving up").Default("5").Int()
	monitorCmd = app.Command("monitor", "Print event notifications until interrupted")
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	log := swarmlog.Default("cmd/swarmit")
	a, err := buildAdapter(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	allowList, err := parseDevices(*devices)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	c := controller.New(a, allowList, log)
	c.Verbose = *verbose
	if err := c.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error opening transport: %v\n", err)
		os.Exit(1)
	}

	var runErr error
	switch cmd {
	case statusCmd.FullCommand():
		runStatus(c)
	case startCmd.FullCommand():
		runStart(c)
	case stopCmd.FullCommand():
		runStop(c)
	case resetCmd.FullCommand():
		c.Command.Reset(*resetPosX, *resetPosY)
	case messageCmd.FullCommand():
		c.Command.Message(*messageArg)
	case flashCmd.FullCommand():
		c.OTA.ChunkTimeout = *chunkWait
		c.OTA.ChunkRetries = *chunkRetry
		runErr = runFlash(c, *flashFile)
	case monitorCmd.FullCommand():
		runMonitor(c, log)
	}

	c.Terminate()
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

func buildAdapter(log *swarmlog.Logger) (adapter.Adapter, error) {
	if *edge != "" {
		host, portStr, err := net.SplitHostPort(*edge)
		if err != nil {
			host, portStr = *edge, "1883"
		}
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid edge port %q: %w", portStr, err)
		}
		return adapter.NewBrokerAdapter(host, p, *edgeTLS, *networkID, log), nil
	}
	if *port == "" {
		return nil, fmt.Errorf("either --port or --edge must be set")
	}
	return adapter.NewSerialAdapter(*port, int(*baudRate), log), nil
}

func parseDevices(raw string) ([]frame.Address, error) {
	if raw == "" {
		return nil, nil
	}
	var out []frame.Address
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.TrimPrefix(tok, "0x")
		tok = strings.TrimPrefix(tok, "0X")
		v, err := strconv.ParseUint(tok, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid device address %q: %w", tok, err)
		}
		out = append(out, frame.Address(v))
	}
	return out, nil
}

func runMonitor(c *controller.Controller, log *swarmlog.Logger) {
	c.OnEvent(func(e controller.Event) {
		log.Info("event", "source", e.Source.String(), "kind", e.Kind.String(), "bytes", len(e.Data))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	c.Monitor(ctx)
}
