// -*- tab-width:2 -*-

package sim

import (
	"fmt"
	"net/netip"

	count "github.com/jayalane/go-counter"
)

const ephemeralPortStart = 49153

// Application is something a node runs between a start and a stop
// time.
type Application interface {
	Name() string
	Start()
	Stop()
}

type sockKey struct {
	proto Proto
	port  uint16
}

// Node is a simulated host or router.  It owns its devices, its
// sockets and its applications.
type Node struct {
	id       int
	name     string
	net      *Network
	devices  []*Device
	sockets  map[sockKey]*Socket
	apps     []Application
	nextPort uint16
	dropped  uint64
}

// ID returns the node number.
func (n *Node) ID() int { return n.id }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Network returns the network the node is part of.
func (n *Node) Network() *Network { return n.net }

// Devices returns the node's interfaces in creation order.
func (n *Node) Devices() []*Device { return n.devices }

// Applications returns the installed applications.
func (n *Node) Applications() []Application { return n.apps }

// Dropped returns packets the node could neither deliver nor forward.
func (n *Node) Dropped() uint64 { return n.dropped }

// Addr returns the address of the first device, the one other nodes
// use to reach this node by default.
func (n *Node) Addr() (netip.Addr, error) {
	if len(n.devices) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s has no devices", ErrNoRoute, n.name)
	}

	return n.devices[0].addr, nil
}

// HasAddr is true when addr belongs to one of the node's devices.
func (n *Node) HasAddr(addr netip.Addr) bool {
	for _, d := range n.devices {
		if d.addr == addr {
			return true
		}
	}

	return false
}

// AddApplication installs app and schedules its Start at start and
// its Stop at stop.  A zero stop means the application is only
// stopped by the end of the run.
func (n *Node) AddApplication(app Application, start, stop SimTime) error {
	if stop != 0 && stop < start {
		return fmt.Errorf("%w: %s stops at %s before it starts at %s", ErrInvalidDelay, app.Name(), stop, start)
	}

	loop := n.net.loop

	if _, err := loop.ScheduleAt(start, app.Start); err != nil {
		return fmt.Errorf("start %s: %w", app.Name(), err)
	}

	if stop != 0 {
		if _, err := loop.ScheduleAt(stop, app.Stop); err != nil {
			return fmt.Errorf("stop %s: %w", app.Name(), err)
		}
	}

	n.apps = append(n.apps, app)
	ml.Ls(n.name+": installed", app.Name(), "start", start, "stop", stop)

	return nil
}

// CreateSocket makes an unbound socket owned by the node.
func (n *Node) CreateSocket(proto Proto) *Socket {
	return &Socket{node: n, proto: proto}
}

func (n *Node) bind(s *Socket, port uint16) (uint16, error) {
	if n.sockets == nil {
		n.sockets = make(map[sockKey]*Socket)
	}

	if port == 0 {
		port = n.ephemeralPort(s.proto)
	}

	k := sockKey{proto: s.proto, port: port}
	if _, ok := n.sockets[k]; ok {
		return 0, fmt.Errorf("%w: %s %s:%d", ErrPortInUse, n.name, s.proto, port)
	}

	n.sockets[k] = s

	return port, nil
}

func (n *Node) unbind(s *Socket) {
	k := sockKey{proto: s.proto, port: s.local.Port}
	if n.sockets[k] == s {
		delete(n.sockets, k)
	}
}

func (n *Node) ephemeralPort(proto Proto) uint16 {
	if n.nextPort < ephemeralPortStart {
		n.nextPort = ephemeralPortStart
	}

	for {
		p := n.nextPort
		n.nextPort++

		if _, ok := n.sockets[sockKey{proto: proto, port: p}]; !ok {
			return p
		}
	}
}

// send routes p out of the node, or back to itself.
func (n *Node) send(p *Packet) error {
	if n.HasAddr(p.Dst.Addr) {
		_, err := n.net.loop.Schedule(0, func() { n.receive(p, nil) })

		return err
	}

	dev, err := n.net.nextHop(n, p.Dst.Addr)
	if err != nil {
		return err
	}

	return dev.channel.Transmit(p, dev)
}

// receive handles a packet arriving on dev (nil for loopback):
// deliver it locally or forward it toward its destination.
func (n *Node) receive(p *Packet, dev *Device) {
	if dev != nil {
		ml.La(n.name+": packet", p.UID, "in on", dev.String())
	}

	if !n.HasAddr(p.Dst.Addr) {
		p.Hops++

		if err := n.send(p); err != nil {
			n.dropped++
			count.IncrSuffix("node_forward_drop", n.name)
			ml.Ln(n.name+": dropping", p.UID, err.Error())
		}

		return
	}

	n.net.observeReceive(p)

	s, ok := n.sockets[sockKey{proto: p.Proto, port: p.Dst.Port}]
	if !ok {
		n.dropped++
		count.IncrSuffix("node_no_socket_drop", n.name)
		ml.La(n.name+": no socket for", p.Proto.String(), p.Dst.Port, "dropping", p.UID)

		return
	}

	ml.La(n.name+": delivering", p.UID, "from", p.Src.String())
	s.deliver(p)
}
