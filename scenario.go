// -*- tab-width:2 -*-

package sim

// scenario.go reads a description of a topology and its traffic and
// builds it on a loop.

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// LinkDesc describes a point to point channel.
type LinkDesc struct {
	A      string `json:"a" yaml:"a"`
	B      string `json:"b" yaml:"b"`
	Delay  string `json:"delay" yaml:"delay"`
	Rate   string `json:"rate" yaml:"rate"`
	Subnet string `json:"subnet,omitempty" yaml:"subnet,omitempty"`
}

// SinkDesc describes a packet sink.
type SinkDesc struct {
	Name  string `json:"name" yaml:"name"`
	Node  string `json:"node" yaml:"node"`
	Proto string `json:"proto" yaml:"proto"`
	Port  uint16 `json:"port" yaml:"port"`
	Start string `json:"start" yaml:"start"`
	Stop  string `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// SourceDesc describes a traffic source.  Packets left out means no
// limit.  Interval, when given, is a fixed gap in seconds or a
// duration string.
type SourceDesc struct {
	Name       string  `json:"name" yaml:"name"`
	Node       string  `json:"node" yaml:"node"`
	Proto      string  `json:"proto" yaml:"proto"`
	Dst        string  `json:"dst" yaml:"dst"`
	DstAddr    string  `json:"dstaddr,omitempty" yaml:"dstaddr,omitempty"`
	Port       uint16  `json:"port" yaml:"port"`
	PacketSize int     `json:"packetsize" yaml:"packetsize"`
	Packets    *uint64 `json:"packets,omitempty" yaml:"packets,omitempty"`
	Rate       string  `json:"rate,omitempty" yaml:"rate,omitempty"`
	Interval   string  `json:"interval,omitempty" yaml:"interval,omitempty"`
	Model      string  `json:"model,omitempty" yaml:"model,omitempty"`
	Start      string  `json:"start" yaml:"start"`
	Stop       string  `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// RateChangeDesc changes a source's rate at a given time.
type RateChangeDesc struct {
	Source string `json:"source" yaml:"source"`
	At     string `json:"at" yaml:"at"`
	Rate   string `json:"rate" yaml:"rate"`
}

// ScenarioDesc is the serializable description of a whole run.
type ScenarioDesc struct {
	Name        string           `json:"name" yaml:"name"`
	Nodes       []string         `json:"nodes" yaml:"nodes"`
	Links       []LinkDesc       `json:"links" yaml:"links"`
	Sinks       []SinkDesc       `json:"sinks" yaml:"sinks"`
	Sources     []SourceDesc     `json:"sources" yaml:"sources"`
	RateChanges []RateChangeDesc `json:"ratechanges,omitempty" yaml:"ratechanges,omitempty"`
	FlowMonitor bool             `json:"flowmonitor" yaml:"flowmonitor"`
	Stop        string           `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// Scenario is a built ScenarioDesc ready to run.
type Scenario struct {
	Name    string
	Loop    *Loop
	Net     *Network
	Monitor *FlowMonitor // nil unless the description asks for it
	Sources map[string]*Source
	Sinks   map[string]*Sink
	StopAt  SimTime
}

// ReadScenarioDesc loads a description; the extension picks yaml or
// json.
func ReadScenarioDesc(filename string) (*ScenarioDesc, error) {
	dict, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	desc := ScenarioDesc{}

	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(dict, &desc)
	case ".json":
		err = json.Unmarshal(dict, &desc)
	default:
		return nil, fmt.Errorf("%w: %s is neither yaml nor json", ErrBadScenario, filename)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadScenario, filename, err)
	}

	return &desc, nil
}

// WriteToFile stores the description, yaml or json by extension.
func (sd *ScenarioDesc) WriteToFile(filename string) error {
	var (
		bytes []byte
		err   error
	)

	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		bytes, err = yaml.Marshal(*sd)
	case ".json":
		bytes, err = json.MarshalIndent(*sd, "", "\t")
	default:
		return fmt.Errorf("%w: %s is neither yaml nor json", ErrBadScenario, filename)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, bytes, 0o644) //nolint:gosec,mnd
}

func optTime(s string) (SimTime, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}

	return ParseSimTime(s)
}

// Build creates the network, applications and scheduled rate
// changes on a fresh loop.
func (sd *ScenarioDesc) Build() (*Scenario, error) {
	bad := func(format string, a ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrBadScenario}, a...)...)
	}

	loop := NewLoop(sd.Name)
	sc := &Scenario{
		Name:    sd.Name,
		Loop:    loop,
		Net:     NewNetwork(loop),
		Sources: make(map[string]*Source),
		Sinks:   make(map[string]*Sink),
	}

	for _, name := range sd.Nodes {
		if _, err := sc.Net.AddNode(name); err != nil {
			return nil, err
		}
	}

	for i, ld := range sd.Links {
		a, err := sc.Net.Node(ld.A)
		if err != nil {
			return nil, bad("link %d: %w", i, err)
		}

		b, err := sc.Net.Node(ld.B)
		if err != nil {
			return nil, bad("link %d: %w", i, err)
		}

		conf := LinkConf{}

		if conf.Delay, err = optTime(ld.Delay); err != nil {
			return nil, bad("link %d: %w", i, err)
		}

		if conf.Rate, err = ParseDataRate(ld.Rate); err != nil {
			return nil, bad("link %d: %w", i, err)
		}

		if ld.Subnet != "" {
			if conf.Subnet, err = netip.ParsePrefix(ld.Subnet); err != nil {
				return nil, bad("link %d: %w", i, err)
			}
		}

		if _, err := sc.Net.Connect(a, b, conf); err != nil {
			return nil, err
		}
	}

	if sd.FlowMonitor {
		sc.Monitor = NewFlowMonitor()
		sc.Monitor.Install(sc.Net)
	}

	for i := range sd.Sinks {
		if err := sc.buildSink(&sd.Sinks[i]); err != nil {
			return nil, bad("sink %q: %w", sd.Sinks[i].Name, err)
		}
	}

	for i := range sd.Sources {
		if err := sc.buildSource(&sd.Sources[i]); err != nil {
			return nil, bad("source %q: %w", sd.Sources[i].Name, err)
		}
	}

	for _, rc := range sd.RateChanges {
		if err := sc.buildRateChange(rc); err != nil {
			return nil, bad("rate change for %q: %w", rc.Source, err)
		}
	}

	stop, err := optTime(sd.Stop)
	if err != nil {
		return nil, bad("stop: %w", err)
	}

	sc.StopAt = stop

	return sc, nil
}

func (sc *Scenario) buildSink(d *SinkDesc) error {
	n, err := sc.Net.Node(d.Node)
	if err != nil {
		return err
	}

	proto, err := ParseProto(d.Proto)
	if err != nil {
		return err
	}

	if _, dup := sc.Sinks[d.Name]; dup {
		return errors.New("duplicate sink name")
	}

	sink, err := MakeSink(n, &SinkConf{Name: d.Name, Proto: proto, Port: d.Port})
	if err != nil {
		return err
	}

	start, err := optTime(d.Start)
	if err != nil {
		return err
	}

	stop, err := optTime(d.Stop)
	if err != nil {
		return err
	}

	sc.Sinks[sink.Name()] = sink

	return n.AddApplication(sink, start, stop)
}

func (sc *Scenario) buildSource(d *SourceDesc) error {
	n, err := sc.Net.Node(d.Node)
	if err != nil {
		return err
	}

	conf := SourceConf{Name: d.Name, PacketSize: d.PacketSize, PacketLimit: Unlimited}

	if _, dup := sc.Sources[d.Name]; dup {
		return errors.New("duplicate source name")
	}

	if conf.Proto, err = ParseProto(d.Proto); err != nil {
		return err
	}

	if conf.Peer, err = sc.resolve(d); err != nil {
		return err
	}

	if d.Packets != nil {
		conf.PacketLimit = *d.Packets
	}

	if d.Rate != "" {
		if conf.Rate, err = ParseDataRate(d.Rate); err != nil {
			return err
		}
	}

	if conf.Interval, err = optTime(d.Interval); err != nil {
		return err
	}

	if conf.Model, err = ParseGapModel(d.Model); err != nil {
		return err
	}

	src, err := MakeSource(n, &conf)
	if err != nil {
		return err
	}

	start, err := optTime(d.Start)
	if err != nil {
		return err
	}

	stop, err := optTime(d.Stop)
	if err != nil {
		return err
	}

	sc.Sources[src.Name()] = src

	return n.AddApplication(src, start, stop)
}

// resolve finds the destination endpoint of a source: an explicit
// address, or the first address of the destination node.
func (sc *Scenario) resolve(d *SourceDesc) (Endpoint, error) {
	if d.DstAddr != "" {
		addr, err := netip.ParseAddr(d.DstAddr)
		if err != nil {
			return Endpoint{}, err
		}

		if _, err := sc.Net.DeviceFor(addr); err != nil {
			return Endpoint{}, err
		}

		return Endpoint{Addr: addr, Port: d.Port}, nil
	}

	dst, err := sc.Net.Node(d.Dst)
	if err != nil {
		return Endpoint{}, err
	}

	addr, err := dst.Addr()
	if err != nil {
		return Endpoint{}, err
	}

	return Endpoint{Addr: addr, Port: d.Port}, nil
}

func (sc *Scenario) buildRateChange(rc RateChangeDesc) error {
	src, ok := sc.Sources[rc.Source]
	if !ok {
		return fmt.Errorf("%w: no source %q", ErrUnknownNode, rc.Source)
	}

	at, err := ParseSimTime(rc.At)
	if err != nil {
		return err
	}

	rate, err := ParseDataRate(rc.Rate)
	if err != nil {
		return err
	}

	_, err = sc.Loop.ScheduleAt(at, func() {
		if err := src.ChangeRate(rate); err != nil {
			ml.Ls(sc.Name+": rate change failed", err.Error())
		}
	})

	return err
}

// Run runs the loop, up to the description's stop time if it has one.
func (sc *Scenario) Run() error {
	if sc.StopAt > 0 {
		if err := sc.Loop.StopAt(sc.StopAt); err != nil {
			return err
		}
	}

	if err := sc.Loop.Run(); err != nil {
		return fmt.Errorf("%s: %w", sc.Name, err)
	}

	if sc.Monitor != nil {
		if err := sc.Monitor.CheckInvariants(); err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
	}

	return nil
}

// Destroy releases the events still pending after Run.
func (sc *Scenario) Destroy() {
	sc.Loop.Destroy()
}
