// -*- tab-width:2 -*-

package sim

import (
	"fmt"

	count "github.com/jayalane/go-counter"
)

// SinkConf configures a packet sink.
type SinkConf struct {
	Name  string
	Proto Proto // zero means UDP
	Port  uint16
}

// Sink listens on a port and counts what arrives.
type Sink struct {
	name      string
	node      *Node
	proto     Proto
	port      uint16
	socket    *Socket
	state     AppState
	rxPackets uint64
	rxBytes   uint64
	firstRx   SimTime
	lastRx    SimTime
	onRecv    RecvFunc
}

// MakeSink builds a sink on node n.
func MakeSink(n *Node, conf *SinkConf) (*Sink, error) {
	if conf.Port == 0 {
		return nil, fmt.Errorf("%w: sink %s needs a port", ErrBadScenario, conf.Name)
	}

	s := &Sink{name: conf.Name, node: n, proto: conf.Proto, port: conf.Port}
	if s.proto == 0 {
		s.proto = UDP
	}

	if s.name == "" {
		s.name = fmt.Sprintf("%s-sink-%d", n.name, conf.Port)
	}

	return s, nil
}

// Name returns the sink name.
func (s *Sink) Name() string { return s.name }

// State returns the lifecycle state.
func (s *Sink) State() AppState { return s.state }

// Received returns packets and bytes received.
func (s *Sink) Received() (packets, bytes uint64) {
	return s.rxPackets, s.rxBytes
}

// Window returns the times of the first and last packet.
func (s *Sink) Window() (first, last SimTime) {
	return s.firstRx, s.lastRx
}

// OnReceive adds a hook called after the sink counts a packet.
func (s *Sink) OnReceive(f RecvFunc) {
	s.onRecv = f
}

// Start opens the listening socket.
func (s *Sink) Start() {
	if s.state != Idle {
		return
	}

	s.socket = s.node.CreateSocket(s.proto)
	if err := s.socket.Bind(s.port); err != nil {
		ml.Ls(s.name+": bind failed", err.Error())
		s.state = Stopped

		return
	}

	s.socket.SetRecvCallback(s.receive)
	s.state = Running
	ml.Ls(s.name+": listening on", s.proto.String(), s.port, "at", s.node.net.loop.Now())
}

// Stop closes the socket; later packets are dropped by the node.
func (s *Sink) Stop() {
	if s.state == Stopped {
		return
	}

	s.state = Stopped

	if s.socket != nil {
		if err := s.socket.Close(); err != nil {
			ml.Ls(s.name+": close failed", err.Error())
		}
	}

	ml.Ls(s.name+": stopped after", s.rxPackets, "packets", s.rxBytes, "bytes")
}

func (s *Sink) receive(sock *Socket, p *Packet) {
	now := s.node.net.loop.Now()
	if s.rxPackets == 0 {
		s.firstRx = now
	}

	s.rxPackets++
	s.rxBytes += uint64(p.Size)
	s.lastRx = now

	count.IncrSuffix("sink_rx", s.name)
	count.MarkDistribution("delay-"+s.name, (now - p.SentAt).Seconds())

	if s.onRecv != nil {
		s.onRecv(sock, p)
	}
}
