// -*- tab-width:2 -*-

// Package main runs a six node dumbbell:
//
//	n0 ---+         +--- n2
//	      |         |
//	      n4 ----- n5
//	      |         |
//	n1 ---+         +--- n3
//
// with a TCP labelled flow n0 -> n2 and a UDP flow n1 -> n3 whose
// rate doubles at 30 seconds.
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
	tcpPort     = 8080
	udpPort     = 8081
	packetSize  = 1040
	packetCount = 100000
	startRate   = "250Kbps"
	raisedRate  = "500kbps"
	raiseAt     = "30s"
	tcpStart    = "1s"
	udpStart    = "20s"
	simStop     = "100s"
)

type options struct {
	delay       string
	rate        string
	flowMonitor bool
	xmlFile     string
	metricsFile string
	logLevel    string
}

func parseFlags(args []string, errOut io.Writer) (*options, error) {
	o := options{}
	fs := flag.NewFlagSet("dumbbell", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.delay, "delay", "2ms", "link propagation delay, e.g. 2ms")
	fs.StringVar(&o.rate, "data-rate", "500kb/s", "link data rate, e.g. 500kb/s")
	fs.BoolVar(&o.flowMonitor, "enable-flow-monitor", true, "collect per-flow statistics")
	fs.StringVar(&o.xmlFile, "flowmon-xml", "dumbbell.flowmon", "flow monitor output file (.flowmon/.xml, .yaml, .json)")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "also write flow metrics in prometheus text format")
	fs.StringVar(&o.logLevel, "log-level", "none", "none, network, state or all")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if _, err := sim.ParseSimTime(o.delay); err != nil {
		return nil, fmt.Errorf("--delay: %w", err)
	}

	if _, err := sim.ParseDataRate(o.rate); err != nil {
		return nil, fmt.Errorf("--data-rate: %w", err)
	}

	if err := sim.CheckLogLevel(o.logLevel); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}

	return &o, nil
}

func scenario(o *options) *sim.ScenarioDesc {
	packets := uint64(packetCount)
	link := func(a, b string, subnet int) sim.LinkDesc {
		return sim.LinkDesc{A: a, B: b, Delay: o.delay, Rate: o.rate, Subnet: "10.1." + strconv.Itoa(subnet) + ".0/24"}
	}

	return &sim.ScenarioDesc{
		Name:  "dumbbell",
		Nodes: []string{"n0", "n1", "n2", "n3", "n4", "n5"},
		Links: []sim.LinkDesc{
			link("n0", "n4", 1),
			link("n1", "n4", 2), //nolint:mnd
			link("n4", "n5", 3), //nolint:mnd
			link("n2", "n5", 4), //nolint:mnd
			link("n3", "n5", 5), //nolint:mnd
		},
		Sinks: []sim.SinkDesc{
			{Name: "tcp-sink", Node: "n2", Proto: "tcp", Port: tcpPort, Start: "0s", Stop: simStop},
			{Name: "udp-sink", Node: "n3", Proto: "udp", Port: udpPort, Start: "0s", Stop: simStop},
		},
		Sources: []sim.SourceDesc{
			{
				Name: "tcp-source", Node: "n0", Proto: "tcp", Dst: "n2", Port: tcpPort,
				PacketSize: packetSize, Packets: &packets, Rate: startRate, Start: tcpStart, Stop: simStop,
			},
			{
				Name: "udp-source", Node: "n1", Proto: "udp", Dst: "n3", Port: udpPort,
				PacketSize: packetSize, Packets: &packets, Rate: startRate, Start: udpStart, Stop: simStop,
			},
		},
		RateChanges: []sim.RateChangeDesc{
			{Source: "udp-source", At: raiseAt, Rate: raisedRate},
		},
		FlowMonitor: o.flowMonitor,
		Stop:        simStop,
	}
}

func run(o *options, out io.Writer) error {
	sc, err := scenario(o).Build()
	if err != nil {
		return err
	}
	defer sc.Destroy()

	if err := sc.Run(); err != nil {
		return err
	}

	for _, name := range []string{"tcp-source", "udp-source"} {
		src := sc.Sources[name]
		fmt.Fprintf(out, "%s sent %d packets, final rate %s\n", name, src.Sent(), src.Rate())
	}

	if sc.Monitor == nil {
		return nil
	}

	if err := sc.Monitor.WriteSummary(out); err != nil {
		return err
	}

	if o.xmlFile != "" {
		if err := sc.Monitor.WriteToFile(o.xmlFile, sc.Name, sc.Loop.Now()); err != nil {
			return err
		}
	}

	if o.metricsFile != "" {
		if err := sc.Monitor.WriteMetricsFile(o.metricsFile); err != nil {
			return err
		}
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
	sim.InitWithLogger(ll.Init("DUMBBELL", o.logLevel))
	count.SetResolution(count.HighRes)

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	count.LogCounters()
}
