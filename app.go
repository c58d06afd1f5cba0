// -*- tab-width:2 -*-

package sim

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
	count "github.com/jayalane/go-counter"
)

// Unlimited is a packet limit that never runs out.
const Unlimited uint64 = math.MaxUint64

// AppState is where a Source is in its life.
type AppState int

// Source states.  Stopped is terminal.
const (
	Idle AppState = iota
	Running
	Stopped
)

func (s AppState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}

	return fmt.Sprintf("state-%d", int(s))
}

// SourceConf configures a traffic source.
type SourceConf struct {
	Name        string
	Proto       Proto // zero means UDP
	Peer        Endpoint
	PacketSize  int
	PacketLimit uint64   // 0 sends nothing; Unlimited never stops
	Rate        DataRate // mean rate; the gap is PacketSize*8/Rate
	Interval    SimTime  // fixed gap used instead of Rate until ChangeRate
	Model       GapModel
}

// Source is a self-pacing traffic generator: it sends a packet, then
// schedules its next send one gap later, until it hits its packet
// limit or is stopped.
type Source struct {
	name     string
	loop     *Loop
	socket   *Socket
	peer     Endpoint
	size     int
	limit    uint64
	rate     DataRate
	interval SimTime
	model    GapModel
	rng      *rngstream.RngStream
	sent     uint64
	state    AppState
	pending  EventHandle
}

// MakeSource turns a source configuration into the source, with a
// socket owned by node n.
func MakeSource(n *Node, conf *SourceConf) (*Source, error) {
	if conf.PacketSize <= 0 {
		return nil, fmt.Errorf("%w: source %s packet size %d", ErrBadScenario, conf.Name, conf.PacketSize)
	}

	if conf.Interval < 0 {
		return nil, fmt.Errorf("%w: source %s interval %s", ErrInvalidDelay, conf.Name, conf.Interval)
	}

	if conf.Interval == 0 && conf.Rate == 0 {
		return nil, fmt.Errorf("%w: source %s", ErrInvalidRate, conf.Name)
	}

	proto := conf.Proto
	if proto == 0 {
		proto = UDP
	}

	s := &Source{
		name:     conf.Name,
		loop:     n.net.loop,
		socket:   n.CreateSocket(proto),
		peer:     conf.Peer,
		size:     conf.PacketSize,
		limit:    conf.PacketLimit,
		rate:     conf.Rate,
		interval: conf.Interval,
		model:    conf.Model,
	}

	if s.name == "" {
		s.name = fmt.Sprintf("%s-source-%d", n.name, len(n.apps))
	}

	if s.model != GapConstant {
		s.rng = rngstream.New(s.name)
	}

	return s, nil
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// State returns the lifecycle state.
func (s *Source) State() AppState { return s.state }

// Sent returns how many packets went out since Start.
func (s *Source) Sent() uint64 { return s.sent }

// Rate returns the current rate.
func (s *Source) Rate() DataRate { return s.rate }

// Socket returns the socket the source sends on.
func (s *Source) Socket() *Socket { return s.socket }

// Start binds and connects the socket and sends the first packet.
func (s *Source) Start() {
	if s.state != Idle {
		ml.Ls(s.name+": start ignored, state is", s.state.String())

		return
	}

	s.state = Running
	s.sent = 0

	if err := s.socket.Bind(0); err != nil {
		ml.Ls(s.name+": bind failed", err.Error())
		s.Stop()

		return
	}

	if err := s.socket.Connect(s.peer); err != nil {
		ml.Ls(s.name+": connect failed", err.Error())
		s.Stop()

		return
	}

	ml.Ls(s.name+": started at", s.loop.Now(), "to", s.peer.String(), "rate", s.rate)

	if s.limit == 0 {
		return
	}

	s.sendAndReschedule()
}

// Stop cancels the pending send and closes the socket.
func (s *Source) Stop() {
	if s.state == Stopped {
		return
	}

	s.state = Stopped
	s.loop.Cancel(s.pending)
	s.pending = EventHandle{}

	if err := s.socket.Close(); err != nil {
		ml.Ls(s.name+": close failed", err.Error())
	}

	ml.Ls(s.name+": stopped at", s.loop.Now(), "after", s.sent, "packets")
}

// ChangeRate sets a new rate.  An already scheduled send keeps its
// time; the gap after it uses the new rate.  It also replaces a fixed
// interval.
func (s *Source) ChangeRate(rate DataRate) error {
	if rate == 0 {
		return fmt.Errorf("%w: source %s", ErrInvalidRate, s.name)
	}

	ml.Ls(s.name+": rate", s.rate, "->", rate, "at", s.loop.Now())

	s.rate = rate
	s.interval = 0

	return nil
}

func (s *Source) sendAndReschedule() {
	s.pending = EventHandle{}

	if err := s.socket.Send(s.size); err != nil {
		count.IncrSuffix("source_send_error", s.name)
		ml.Ls(s.name+": send failed", err.Error())
		s.Stop()

		return
	}

	s.sent++
	count.IncrSuffix("source_sent", s.name)

	if s.sent >= s.limit || s.state != Running {
		return
	}

	gap, err := s.nextGap()
	if err != nil {
		ml.Ls(s.name+": cannot pace", err.Error())
		s.Stop()

		return
	}

	h, err := s.loop.Schedule(gap, s.sendAndReschedule)
	if err != nil {
		ml.Ls(s.name+": cannot schedule", err.Error())

		return
	}

	s.pending = h
}

// nextGap is the time to the next send at the current rate.
func (s *Source) nextGap() (SimTime, error) {
	mean := s.interval
	if mean == 0 {
		var err error

		mean, err = s.rate.TxTime(uint64(s.size))
		if err != nil {
			return 0, err
		}
	}

	if s.model == GapConstant {
		return mean, nil
	}

	gap := s.model.Quantile(mean.Seconds())(s.rng.RandU01())
	if math.IsInf(gap, 0) || math.IsNaN(gap) || gap > math.MaxInt64/float64(Second) {
		return 0, fmt.Errorf("%w: gap %f", ErrInvalidDelay, gap)
	}

	return Seconds(gap), nil
}
