// -*- tab-width:2 -*-

// Package main runs a two node simulation: a UDP client sending
// fixed size packets at a fixed interval to a UDP server over one
// point to point link.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	count "github.com/jayalane/go-counter"
	ll "github.com/jayalane/go-lll"
	sim "github.com/jayalane/go-netsim"
)

// Scenario parameters.
const (
	serverPort  = 8080
	packetSize  = 1024
	serverStart = "1s"
	clientStart = "2s"
	appStop     = "10s"
)

type options struct {
	delay    string
	rate     string
	interval float64
	logLevel string
	sweep    int // max delay in ms, 0 for a single run
}

func parseFlags(args []string, errOut io.Writer) (*options, error) {
	o := options{}
	fs := flag.NewFlagSet("p2p", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.delay, "delay", "20ms", "link propagation delay, e.g. 20ms")
	fs.StringVar(&o.rate, "data-rate", "5Mbps", "link data rate, e.g. 5Mbps")
	fs.Float64Var(&o.interval, "packet-interval", 0.05, "client packet interval (seconds)") //nolint:mnd
	fs.StringVar(&o.logLevel, "log-level", "none", "none, network, state or all")
	fs.IntVar(&o.sweep, "sweep", 0, "run once per delay from 1ms to this many ms, printing throughput (Kbps) per line")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if _, err := sim.ParseSimTime(o.delay); err != nil {
		return nil, fmt.Errorf("--delay: %w", err)
	}

	if _, err := sim.ParseDataRate(o.rate); err != nil {
		return nil, fmt.Errorf("--data-rate: %w", err)
	}

	if iv, err := sim.ParseSimTime(intervalString(o.interval)); err != nil || !(iv > 0) {
		return nil, fmt.Errorf("--packet-interval: %w: %v", sim.ErrInvalidDelay, o.interval)
	}

	if err := sim.CheckLogLevel(o.logLevel); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}

	if o.sweep < 0 {
		return nil, fmt.Errorf("--sweep: %w: %dms", sim.ErrInvalidDelay, o.sweep)
	}

	return &o, nil
}

func intervalString(seconds float64) string {
	return fmt.Sprintf("%g", seconds)
}

// scenario describes the two node run.
func scenario(o *options) *sim.ScenarioDesc {
	return &sim.ScenarioDesc{
		Name:  "p2p",
		Nodes: []string{"n0", "n1"},
		Links: []sim.LinkDesc{
			{A: "n0", B: "n1", Delay: o.delay, Rate: o.rate, Subnet: "10.1.1.0/24"},
		},
		Sinks: []sim.SinkDesc{
			{Name: "udp-server", Node: "n1", Proto: "udp", Port: serverPort, Start: serverStart, Stop: appStop},
		},
		Sources: []sim.SourceDesc{
			{
				Name:       "udp-client",
				Node:       "n0",
				Proto:      "udp",
				Dst:        "n1",
				Port:       serverPort,
				PacketSize: packetSize,
				Interval:   intervalString(o.interval),
				Start:      clientStart,
				Stop:       appStop,
			},
		},
		FlowMonitor: true,
	}
}

func run(o *options, out io.Writer) error {
	if o.sweep > 0 {
		return sweep(o, out)
	}

	sc, err := scenario(o).Build()
	if err != nil {
		return err
	}
	defer sc.Destroy()

	if err := sc.Run(); err != nil {
		return err
	}

	client := sc.Sources["udp-client"]
	server := sc.Sinks["udp-server"]
	rxPackets, rxBytes := server.Received()

	fmt.Fprintf(out, "client sent %d packets of %d bytes\n", client.Sent(), packetSize)
	fmt.Fprintf(out, "server received %d packets (%d bytes)\n", rxPackets, rxBytes)

	return sc.Monitor.WriteSummary(out)
}

// sweep reruns the scenario with link delays of 1 to o.sweep ms and
// prints the flow throughput in Kbps, one line per delay.
func sweep(o *options, out io.Writer) error {
	for ms := 1; ms <= o.sweep; ms++ {
		one := *o
		one.delay = strconv.Itoa(ms) + "ms"

		sc, err := scenario(&one).Build()
		if err != nil {
			return err
		}

		err = sc.Run()
		flows := sc.Monitor.Flows()
		sc.Destroy()

		if err != nil {
			return fmt.Errorf("delay %s: %w", one.delay, err)
		}

		kbps := 0.0
		if len(flows) > 0 {
			kbps = flows[0].Throughput() / 1000 //nolint:mnd
		}

		fmt.Fprintf(out, "%.3f\n", kbps)
	}

	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(2) //nolint:mnd
	}

	ll.SetWriter(os.Stdout)
	sim.InitWithLogger(ll.Init("P2P", o.logLevel))
	count.SetResolution(count.HighRes)

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	count.LogCounters()
}
