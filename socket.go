// -*- tab-width:2 -*-

package sim

import (
	"fmt"

	count "github.com/jayalane/go-counter"
)

// RecvFunc is called for every packet a socket receives.
type RecvFunc func(s *Socket, p *Packet)

// Socket is a datagram endpoint on a node.  The node owns it;
// applications hold it until they close it.
type Socket struct {
	node      *Node
	proto     Proto
	local     Endpoint
	peer      Endpoint
	bound     bool
	connected bool
	closed    bool
	recv      RecvFunc
	txPackets uint64
	txBytes   uint64
	rxPackets uint64
	rxBytes   uint64
}

// Node returns the owning node.
func (s *Socket) Node() *Node { return s.node }

// Proto returns the socket protocol.
func (s *Socket) Proto() Proto { return s.proto }

// Local returns the bound address and port.
func (s *Socket) Local() Endpoint { return s.local }

// Peer returns the connected peer.
func (s *Socket) Peer() Endpoint { return s.peer }

// Closed is true after Close.
func (s *Socket) Closed() bool { return s.closed }

// Counts returns packets and bytes sent and received.
func (s *Socket) Counts() (txPackets, txBytes, rxPackets, rxBytes uint64) {
	return s.txPackets, s.txBytes, s.rxPackets, s.rxBytes
}

// SetRecvCallback installs f for incoming packets.
func (s *Socket) SetRecvCallback(f RecvFunc) {
	s.recv = f
}

// Bind attaches the socket to port, or to an ephemeral port when
// port is 0.
func (s *Socket) Bind(port uint16) error {
	if s.closed {
		return ErrSocketClosed
	}

	if s.bound {
		return fmt.Errorf("%w: already bound to %d", ErrPortInUse, s.local.Port)
	}

	p, err := s.node.bind(s, port)
	if err != nil {
		return err
	}

	s.local.Port = p
	s.bound = true

	if addr, err := s.node.Addr(); err == nil {
		s.local.Addr = addr
	}

	return nil
}

// Connect sets the default destination and picks the local address
// of the interface that leads there.
func (s *Socket) Connect(peer Endpoint) error {
	if s.closed {
		return ErrSocketClosed
	}

	if !s.bound {
		if err := s.Bind(0); err != nil {
			return err
		}
	}

	if !s.node.HasAddr(peer.Addr) {
		dev, err := s.node.net.nextHop(s.node, peer.Addr)
		if err != nil {
			return err
		}

		s.local.Addr = dev.addr
	} else {
		s.local.Addr = peer.Addr
	}

	s.peer = peer
	s.connected = true

	return nil
}

// Send sends size bytes to the connected peer.
func (s *Socket) Send(size int) error {
	if !s.connected {
		if s.closed {
			return ErrSocketClosed
		}

		return fmt.Errorf("%w: socket not connected", ErrNoRoute)
	}

	return s.SendTo(size, s.peer)
}

// SendTo sends size bytes to dst.
func (s *Socket) SendTo(size int, dst Endpoint) error {
	if s.closed {
		return ErrSocketClosed
	}

	if !s.bound {
		if err := s.Bind(0); err != nil {
			return err
		}
	}

	net := s.node.net
	p := &Packet{
		UID:    net.newUID(),
		Size:   size,
		Proto:  s.proto,
		Src:    s.local,
		Dst:    dst,
		SentAt: net.loop.Now(),
	}

	if err := s.node.send(p); err != nil {
		count.IncrSuffix("socket_send_error", s.node.name)

		return err
	}

	s.txPackets++
	s.txBytes += uint64(size)
	net.observeSend(p)

	return nil
}

// Close releases the port.  Closing twice is fine.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}

	if s.bound {
		s.node.unbind(s)
	}

	s.closed = true
	s.connected = false

	ml.La(s.node.name+": closed socket", s.local.String())

	return nil
}

func (s *Socket) deliver(p *Packet) {
	s.rxPackets++
	s.rxBytes += uint64(p.Size)

	if s.recv != nil {
		s.recv(s, p)
	}
}
