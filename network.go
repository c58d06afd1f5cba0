// -*- tab-width:2 -*-

package sim

import (
	"fmt"
	"math"
	"net/netip"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// FlowObserver sees every packet leave its source and reach its
// destination node.
type FlowObserver interface {
	OnSend(key FlowKey, size int, at SimTime)
	OnReceive(key FlowKey, size int, at SimTime)
	OnDelay(key FlowKey, d SimTime)
}

// Network holds the topology: nodes, the channels between them and
// the global routes.  Routes are hop count shortest paths, computed
// on demand and cached until the topology changes.
type Network struct {
	loop     *Loop
	nodes    []*Node
	byName   map[string]*Node
	channels []*Channel
	addrs    map[netip.Addr]*Device
	observer FlowObserver
	nextUID  uint64
	subnets  int

	connGraph *simple.WeightedUndirectedGraph
	spTrees   map[int64]path.ShortestAlts
	routes    map[[2]int][]*Node
}

// NewNetwork makes an empty network driven by loop.
func NewNetwork(loop *Loop) *Network {
	return &Network{
		loop:      loop,
		byName:    make(map[string]*Node),
		addrs:     make(map[netip.Addr]*Device),
		connGraph: simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		spTrees:   make(map[int64]path.ShortestAlts),
		routes:    make(map[[2]int][]*Node),
	}
}

// Loop returns the driving loop.
func (n *Network) Loop() *Loop { return n.loop }

// SetObserver installs the flow observer; nil removes it.
func (n *Network) SetObserver(o FlowObserver) {
	n.observer = o
}

// AddNode makes a node.  An empty name becomes "n<id>".
func (n *Network) AddNode(name string) (*Node, error) {
	id := len(n.nodes)
	if name == "" {
		name = fmt.Sprintf("n%d", id)
	}

	if _, ok := n.byName[name]; ok {
		return nil, fmt.Errorf("%w: duplicate node name %q", ErrBadScenario, name)
	}

	node := &Node{id: id, name: name, net: n}
	n.nodes = append(n.nodes, node)
	n.byName[name] = node
	n.connGraph.AddNode(simple.Node(id))

	return node, nil
}

// Node returns the named node.
func (n *Network) Node(name string) (*Node, error) {
	node, ok := n.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}

	return node, nil
}

// Nodes returns every node in creation order.
func (n *Network) Nodes() []*Node { return n.nodes }

// Channels returns every channel in creation order.
func (n *Network) Channels() []*Channel { return n.channels }

// Connect joins a and b with a point to point channel and gives
// each end an address on the channel's subnet, a getting the first
// host address and b the second.
func (n *Network) Connect(a, b *Node, conf LinkConf) (*Channel, error) {
	if a == b {
		return nil, fmt.Errorf("%w: %s linked to itself", ErrBadScenario, a.name)
	}

	if conf.Delay < 0 {
		return nil, fmt.Errorf("%w: link %s-%s delay %s", ErrInvalidDelay, a.name, b.name, conf.Delay)
	}

	if conf.Rate == 0 {
		return nil, fmt.Errorf("%w: link %s-%s", ErrInvalidRate, a.name, b.name)
	}

	prefix := conf.Subnet
	if !prefix.IsValid() {
		prefix = n.nextSubnet()
	}

	prefix = prefix.Masked()
	if !prefix.Addr().Is4() || prefix.Bits() > 30 { //nolint:mnd
		return nil, fmt.Errorf("%w: subnet %s cannot hold two hosts", ErrBadScenario, prefix)
	}

	addrA := prefix.Addr().Next()
	addrB := addrA.Next()

	for _, addr := range []netip.Addr{addrA, addrB} {
		if _, ok := n.addrs[addr]; ok {
			return nil, fmt.Errorf("%w: address %s already assigned", ErrBadScenario, addr)
		}
	}

	c := &Channel{id: len(n.channels), loop: n.loop, delay: conf.Delay, rate: conf.Rate}
	c.a = &Device{node: a, ifIndex: len(a.devices), addr: addrA, prefix: prefix, channel: c}
	c.b = &Device{node: b, ifIndex: len(b.devices), addr: addrB, prefix: prefix, channel: c}

	a.devices = append(a.devices, c.a)
	b.devices = append(b.devices, c.b)
	n.addrs[addrA] = c.a
	n.addrs[addrB] = c.b
	n.channels = append(n.channels, c)

	n.connGraph.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(a.id), T: simple.Node(b.id), W: 1.0})

	// topology changed, so do the routes
	clear(n.spTrees)
	clear(n.routes)

	ml.Ls("link", c.id, c.a.String(), "<->", c.b.String(), "delay", conf.Delay, "rate", conf.Rate)

	return c, nil
}

func (n *Network) nextSubnet() netip.Prefix {
	n.subnets++

	for {
		k := n.subnets
		addr := netip.AddrFrom4([4]byte{10, byte(1 + k/256), byte(k % 256), 0}) //nolint:mnd
		p := netip.PrefixFrom(addr, 24)                                        //nolint:mnd

		if _, taken := n.addrs[addr.Next()]; !taken {
			return p
		}

		n.subnets++
	}
}

// DeviceFor returns the device holding addr.
func (n *Network) DeviceFor(addr netip.Addr) (*Device, error) {
	d, ok := n.addrs[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no device has address %s", ErrUnknownNode, addr)
	}

	return d, nil
}

// Route returns the nodes on the path from src to dst, both
// included.  Among equal length paths the one with the lowest node
// ids wins, so routing does not depend on map order.
func (n *Network) Route(src, dst *Node) ([]*Node, error) {
	key := [2]int{src.id, dst.id}
	if r, ok := n.routes[key]; ok {
		return r, nil
	}

	if src == dst {
		r := []*Node{src}
		n.routes[key] = r

		return r, nil
	}

	tree, ok := n.spTrees[int64(src.id)]
	if !ok {
		tree = path.DijkstraAllFrom(simple.Node(src.id), n.connGraph)
		n.spTrees[int64(src.id)] = tree
	}

	paths, weight := tree.AllTo(int64(dst.id))
	if len(paths) == 0 || math.IsInf(weight, 1) {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, src.name, dst.name)
	}

	best := convertNodeSeq(paths[0])
	for _, p := range paths[1:] {
		ids := convertNodeSeq(p)
		if slices.Compare(ids, best) < 0 {
			best = ids
		}
	}

	r := make([]*Node, len(best))
	for i, id := range best {
		r[i] = n.nodes[id]
	}

	n.routes[key] = r

	return r, nil
}

// convertNodeSeq extracts node ids from a sequence of graph nodes.
func convertNodeSeq(seq []graph.Node) []int {
	ids := make([]int, len(seq))
	for i, gn := range seq {
		ids[i] = int(gn.ID())
	}

	return ids
}

// nextHop returns the device on from that leads toward addr.
func (n *Network) nextHop(from *Node, addr netip.Addr) (*Device, error) {
	dstDev, ok := n.addrs[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, addr)
	}

	r, err := n.Route(from, dstDev.node)
	if err != nil {
		return nil, err
	}

	if len(r) < 2 { //nolint:mnd
		return nil, fmt.Errorf("%w: %s is local to %s", ErrNoRoute, addr, from.name)
	}

	next := r[1]

	// a direct link to the destination device is preferred when
	// there are several channels to the next node
	for _, d := range from.devices {
		if d.Peer() == dstDev {
			return d, nil
		}
	}

	for _, d := range from.devices {
		if d.Peer().node == next {
			return d, nil
		}
	}

	return nil, fmt.Errorf("%w: %s has no device toward %s", ErrNoRoute, from.name, next.name)
}

func (n *Network) newUID() uint64 {
	n.nextUID++

	return n.nextUID
}

func (n *Network) observeSend(p *Packet) {
	if n.observer != nil {
		n.observer.OnSend(p.FlowKey(), p.Size, n.loop.Now())
	}
}

func (n *Network) observeReceive(p *Packet) {
	if n.observer != nil {
		key := p.FlowKey()
		now := n.loop.Now()
		n.observer.OnReceive(key, p.Size, now)
		n.observer.OnDelay(key, now-p.SentAt)
	}
}
