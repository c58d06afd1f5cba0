// -*- tab-width:2 -*-

package sim

import (
	"fmt"
	"net/netip"
	"strconv"

	count "github.com/jayalane/go-counter"
)

// LinkConf configures a point to point channel.
type LinkConf struct {
	Delay SimTime  // propagation delay
	Rate  DataRate // reported, and used by generators to size themselves
	// Subnet for the two devices; the zero value picks the next
	// free 10.1.x.0/24.
	Subnet netip.Prefix
}

// Device is one node's interface on a channel.
type Device struct {
	node      *Node
	ifIndex   int
	addr      netip.Addr
	prefix    netip.Prefix
	channel   *Channel
	txPackets uint64
	rxPackets uint64
}

// Node returns the node owning the device.
func (d *Device) Node() *Node { return d.node }

// Addr returns the device address.
func (d *Device) Addr() netip.Addr { return d.addr }

// Prefix returns the subnet the device is on.
func (d *Device) Prefix() netip.Prefix { return d.prefix }

// Channel returns the attached channel.
func (d *Device) Channel() *Channel { return d.channel }

// Peer returns the device at the other end of the channel.
func (d *Device) Peer() *Device {
	if d.channel.a == d {
		return d.channel.b
	}

	return d.channel.a
}

// Counts returns packets sent and received on the device.
func (d *Device) Counts() (tx, rx uint64) {
	return d.txPackets, d.rxPackets
}

func (d *Device) String() string {
	return fmt.Sprintf("%s/if%d(%s)", d.node.name, d.ifIndex, d.addr)
}

// Channel is a point to point link between two devices.  Packets
// arrive after the propagation delay; there is no queueing, senders
// pace themselves.
type Channel struct {
	id      int
	loop    *Loop
	delay   SimTime
	rate    DataRate
	a, b    *Device
	packets uint64
	bytes   uint64
}

// ID returns the channel number.
func (c *Channel) ID() int { return c.id }

// Delay returns the propagation delay.
func (c *Channel) Delay() SimTime { return c.delay }

// Rate returns the nominal data rate.
func (c *Channel) Rate() DataRate { return c.rate }

// Devices returns both ends.
func (c *Channel) Devices() (*Device, *Device) { return c.a, c.b }

// Counts returns packets and bytes carried so far.
func (c *Channel) Counts() (packets, bytes uint64) {
	return c.packets, c.bytes
}

// Transmit puts p on the wire from one end; the other end receives
// it after the propagation delay.
func (c *Channel) Transmit(p *Packet, from *Device) error {
	if from != c.a && from != c.b {
		return fmt.Errorf("device %s is not on channel %d", from, c.id)
	}

	to := from.Peer()
	from.txPackets++
	c.packets++
	c.bytes += uint64(p.Size)

	count.IncrSuffix("channel_tx_packets", strconv.Itoa(c.id))
	ml.La("channel", c.id, "tx", p.UID, from.String(), "->", to.String(), "at", c.loop.Now())

	_, err := c.loop.Schedule(c.delay, func() {
		to.rxPackets++
		to.node.receive(p, to)
	})

	return err
}
