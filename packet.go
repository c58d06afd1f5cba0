// -*- tab-width:2 -*-

package sim

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Proto is the transport protocol number carried by a packet.
type Proto uint8

// Transport protocols.  Only the label differs: both are delivered
// as datagrams.
const (
	TCP Proto = 6
	UDP Proto = 17
)

func (p Proto) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	}

	return "proto-" + strconv.Itoa(int(p))
}

// ParseProto accepts "tcp" or "udp".
func ParseProto(s string) (Proto, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return TCP, nil
	case "udp", "":
		return UDP, nil
	}

	return 0, fmt.Errorf("unknown protocol %q", s)
}

// Endpoint is an address and port.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

// Packet is a simulated datagram.  Only the payload size is
// modelled, never its content.
type Packet struct {
	UID    uint64
	Size   int
	Proto  Proto
	Src    Endpoint
	Dst    Endpoint
	SentAt SimTime
	Hops   int
}

// FlowKey returns the 5-tuple the packet belongs to.
func (p *Packet) FlowKey() FlowKey {
	return FlowKey{Proto: p.Proto, Src: p.Src, Dst: p.Dst}
}
