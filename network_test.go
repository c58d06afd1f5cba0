// -*- tab-width:2 -*-
package sim

import (
	"errors"
	"net/netip"
	"testing"
)

// dumbbell builds
//
//	n0 -+       +- n2
//	    n4 --- n5
//	n1 -+       +- n3
//
// with the same delay on every link.
func dumbbell(t *testing.T, delay SimTime) (*Loop, *Network, []*Node) {
	t.Helper()

	loop := NewLoop(t.Name())
	net := NewNetwork(loop)

	nodes := make([]*Node, 6)
	for i := range nodes {
		n, err := net.AddNode("")
		if err != nil {
			t.Fatal(err)
		}

		nodes[i] = n
	}

	for _, l := range [][2]int{{0, 4}, {1, 4}, {4, 5}, {2, 5}, {3, 5}} {
		if _, err := net.Connect(nodes[l[0]], nodes[l[1]], LinkConf{Delay: delay, Rate: 500 * Kbps}); err != nil {
			t.Fatal(err)
		}
	}

	return loop, net, nodes
}

func names(r []*Node) []string {
	out := make([]string, len(r))
	for i, n := range r {
		out[i] = n.Name()
	}

	return out
}

func TestAddressing(t *testing.T) {
	_, net, nodes := dumbbell(t, Millisecond)

	n0, err := nodes[0].Addr()
	if err != nil || n0 != netip.MustParseAddr("10.1.1.1") {
		t.Errorf("n0 address %s %v", n0, err)
	}

	d := nodes[4].Devices()
	if len(d) != 3 {
		t.Fatalf("n4 has %d devices", len(d))
	}

	want := []string{"10.1.1.2", "10.1.2.2", "10.1.3.1"}
	for i, dev := range d {
		if dev.Addr().String() != want[i] {
			t.Errorf("n4 if%d is %s want %s", i, dev.Addr(), want[i])
		}
	}

	dev, err := net.DeviceFor(netip.MustParseAddr("10.1.5.1"))
	if err != nil || dev.Node() != nodes[3] {
		t.Errorf("10.1.5.1 is on %v, %v", dev, err)
	}

	if _, err := net.DeviceFor(netip.MustParseAddr("192.168.0.1")); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown address: %v", err)
	}

	if _, err := net.AddNode("n0"); !errors.Is(err, ErrBadScenario) {
		t.Errorf("duplicate name: %v", err)
	}

	if _, err := net.Connect(nodes[0], nodes[0], LinkConf{Rate: Kbps}); err == nil {
		t.Error("self link accepted")
	}

	if _, err := net.Connect(nodes[0], nodes[1], LinkConf{}); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("zero rate link: %v", err)
	}

	conf := LinkConf{Rate: Kbps, Subnet: netip.MustParsePrefix("10.1.1.0/24")}
	if _, err := net.Connect(nodes[0], nodes[1], conf); !errors.Is(err, ErrBadScenario) {
		t.Errorf("reused subnet: %v", err)
	}
}

func TestRoute(t *testing.T) {
	_, net, nodes := dumbbell(t, Millisecond)

	r, err := net.Route(nodes[0], nodes[2])
	if err != nil {
		t.Fatal(err)
	}

	got := names(r)
	want := []string{"n0", "n4", "n5", "n2"}

	if len(got) != len(want) {
		t.Fatalf("route %v", got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("route %v want %v", got, want)
		}
	}

	if r, _ := net.Route(nodes[3], nodes[3]); len(r) != 1 {
		t.Errorf("route to self %v", names(r))
	}

	lonely, _ := net.AddNode("lonely")
	if _, err := net.Route(nodes[0], lonely); !errors.Is(err, ErrNoRoute) {
		t.Errorf("route to unconnected node: %v", err)
	}
}

// TestRouteTieBreak has two equal paths; the one through the lower
// numbered node wins whatever order the links were made in.
func TestRouteTieBreak(t *testing.T) {
	net := NewNetwork(NewLoop("tie"))

	n := make([]*Node, 4)
	for i := range n {
		n[i], _ = net.AddNode("")
	}

	for _, l := range [][2]int{{2, 3}, {0, 2}, {1, 3}, {0, 1}} {
		if _, err := net.Connect(n[l[0]], n[l[1]], LinkConf{Rate: Mbps}); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		r, err := net.Route(n[0], n[3])
		if err != nil {
			t.Fatal(err)
		}

		if got := names(r); len(got) != 3 || got[1] != "n1" {
			t.Fatalf("route %v, want through n1", got)
		}
	}

	// a new link invalidates the cache
	if _, err := net.Connect(n[0], n[3], LinkConf{Rate: Mbps}); err != nil {
		t.Fatal(err)
	}

	if r, _ := net.Route(n[0], n[3]); len(r) != 2 {
		t.Errorf("route %v after direct link", names(r))
	}
}

func TestSocketDelivery(t *testing.T) {
	delay := 2 * Millisecond
	loop, _, nodes := dumbbell(t, delay)

	rx := nodes[2].CreateSocket(UDP)
	if err := rx.Bind(9); err != nil {
		t.Fatal(err)
	}

	var got []*Packet

	var at []SimTime

	rx.SetRecvCallback(func(_ *Socket, p *Packet) {
		got = append(got, p)
		at = append(at, loop.Now())
	})

	tx := nodes[0].CreateSocket(UDP)
	dst, _ := nodes[2].Addr()

	if err := tx.Connect(Endpoint{Addr: dst, Port: 9}); err != nil {
		t.Fatal(err)
	}

	if tx.Local().Port < ephemeralPortStart {
		t.Errorf("ephemeral port %d", tx.Local().Port)
	}

	_, _ = loop.Schedule(Second, func() {
		if err := tx.Send(100); err != nil {
			t.Error(err)
		}
	})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("received %d packets", len(got))
	}

	if at[0] != Second+3*delay {
		t.Errorf("arrived at %s, want %s", at[0], Second+3*delay)
	}

	if got[0].Hops != 2 || got[0].Size != 100 || got[0].Src != tx.Local() {
		t.Errorf("packet %+v", got[0])
	}

	txp, txb, _, _ := tx.Counts()
	_, _, rxp, rxb := rx.Counts()

	if txp != 1 || txb != 100 || rxp != 1 || rxb != 100 {
		t.Errorf("counts tx %d/%d rx %d/%d", txp, txb, rxp, rxb)
	}

	if p, _ := nodes[4].Devices()[2].Channel().Counts(); p != 1 {
		t.Errorf("core link carried %d packets", p)
	}
}

func TestSocketErrors(t *testing.T) {
	loop, _, nodes := dumbbell(t, Millisecond)

	a := nodes[2].CreateSocket(UDP)
	b := nodes[2].CreateSocket(UDP)

	if err := a.Bind(80); err != nil {
		t.Fatal(err)
	}

	if err := b.Bind(80); !errors.Is(err, ErrPortInUse) {
		t.Errorf("double bind: %v", err)
	}

	// same port, other protocol
	if err := nodes[2].CreateSocket(TCP).Bind(80); err != nil {
		t.Errorf("tcp bind: %v", err)
	}

	if err := a.SendTo(10, Endpoint{Addr: netip.MustParseAddr("172.16.0.1"), Port: 1}); !errors.Is(err, ErrNoRoute) {
		t.Errorf("send to nowhere: %v", err)
	}

	if err := b.Send(10); !errors.Is(err, ErrNoRoute) {
		t.Errorf("send unconnected: %v", err)
	}

	_ = a.Close()
	if err := a.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	if err := a.SendTo(10, Endpoint{Addr: netip.MustParseAddr("10.1.1.1"), Port: 1}); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("send after close: %v", err)
	}

	// the port is free again
	if err := b.Bind(80); err != nil {
		t.Errorf("bind after close: %v", err)
	}

	// nobody listens on port 7: dropped at n2
	dst, _ := nodes[2].Addr()
	c := nodes[0].CreateSocket(UDP)

	if err := c.SendTo(10, Endpoint{Addr: dst, Port: 7}); err != nil {
		t.Fatal(err)
	}

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if nodes[2].Dropped() != 1 {
		t.Errorf("n2 dropped %d", nodes[2].Dropped())
	}
}

func TestLoopback(t *testing.T) {
	loop, _, nodes := dumbbell(t, Millisecond)

	addr, _ := nodes[4].Addr()
	s := nodes[4].CreateSocket(UDP)
	_ = s.Bind(5)

	n := 0
	s.SetRecvCallback(func(_ *Socket, p *Packet) {
		n++

		if loop.Now() != 0 || p.Hops != 0 {
			t.Errorf("loopback packet at %s hops %d", loop.Now(), p.Hops)
		}
	})

	if err := s.SendTo(1, Endpoint{Addr: addr, Port: 5}); err != nil {
		t.Fatal(err)
	}

	_ = loop.Run()

	if n != 1 {
		t.Errorf("loopback delivered %d", n)
	}
}
