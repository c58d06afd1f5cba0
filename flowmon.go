// -*- tab-width:2 -*-

package sim

import (
	"errors"
	"fmt"

	count "github.com/jayalane/go-counter"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// FlowKey identifies a flow by its 5-tuple.
type FlowKey struct {
	Proto Proto
	Src   Endpoint
	Dst   Endpoint
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s -> %s", k.Proto, k.Src, k.Dst)
}

// FlowRecord accumulates what one flow sent and received.
type FlowRecord struct {
	ID        int
	Key       FlowKey
	TxBytes   uint64
	RxBytes   uint64
	TxPackets uint64
	RxPackets uint64
	FirstTx   SimTime
	LastTx    SimTime
	FirstRx   SimTime
	LastRx    SimTime
	DelaySum  SimTime
	JitterSum SimTime

	lastDelay SimTime
	delays    []float64 // seconds, one per received packet
}

// Throughput is the received bits per second over the time from the
// first send to the last receive; 0 before anything arrives.
func (r *FlowRecord) Throughput() float64 {
	if r.RxPackets == 0 || r.LastRx <= r.FirstTx {
		return 0
	}

	return float64(r.RxBytes) * 8 / (r.LastRx - r.FirstTx).Seconds() //nolint:mnd
}

// LostPackets is packets sent and never received; negative means
// packets were duplicated somewhere.
func (r *FlowRecord) LostPackets() int64 {
	return int64(r.TxPackets) - int64(r.RxPackets) //nolint:gosec
}

// MeanDelay is the average one-way delay.
func (r *FlowRecord) MeanDelay() SimTime {
	if r.RxPackets == 0 {
		return 0
	}

	return r.DelaySum / SimTime(r.RxPackets) //nolint:gosec
}

// DelayStdDev is the standard deviation of the one-way delay, in
// seconds.
func (r *FlowRecord) DelayStdDev() float64 {
	if len(r.delays) < 2 { //nolint:mnd
		return 0
	}

	_, std := stat.MeanStdDev(r.delays, nil)

	return std
}

// DelayQuantile returns the p quantile of the one-way delay in
// seconds.
func (r *FlowRecord) DelayQuantile(p float64) float64 {
	if len(r.delays) == 0 {
		return 0
	}

	sorted := slices.Clone(r.delays)
	slices.Sort(sorted)

	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

func (r *FlowRecord) clone() FlowRecord {
	c := *r
	c.delays = slices.Clone(r.delays)

	return c
}

// FlowMonitor is the flow statistics collector.  Install it on a
// network and it sees every packet at its source and destination.
type FlowMonitor struct {
	// Strict panics on an invariant violation instead of logging it.
	Strict bool

	flows map[FlowKey]*FlowRecord
	order []*FlowRecord
}

// NewFlowMonitor returns an empty monitor.
func NewFlowMonitor() *FlowMonitor {
	Init()

	return &FlowMonitor{flows: make(map[FlowKey]*FlowRecord)}
}

// Install makes m the observer of net.
func (m *FlowMonitor) Install(net *Network) {
	net.SetObserver(m)
}

func (m *FlowMonitor) record(key FlowKey) *FlowRecord {
	r, ok := m.flows[key]
	if !ok {
		r = &FlowRecord{ID: len(m.order) + 1, Key: key}
		m.flows[key] = r
		m.order = append(m.order, r)

		ml.Ln("flow", r.ID, "is", key.String())
	}

	return r
}

// OnSend counts a packet leaving its source.
func (m *FlowMonitor) OnSend(key FlowKey, size int, at SimTime) {
	r := m.record(key)
	if r.TxPackets == 0 {
		r.FirstTx = at
	}

	r.TxPackets++
	r.TxBytes += uint64(size)
	r.LastTx = at
}

// OnReceive counts a packet reaching its destination node.
func (m *FlowMonitor) OnReceive(key FlowKey, size int, at SimTime) {
	r := m.record(key)
	if r.RxPackets == 0 {
		r.FirstRx = at
	}

	r.RxPackets++
	r.RxBytes += uint64(size)
	r.LastRx = at

	if r.RxBytes > r.TxBytes {
		m.violation(fmt.Errorf("%w: flow %d received %d bytes but sent %d", ErrInvariantViolation,
			r.ID, r.RxBytes, r.TxBytes))
	}
}

// OnDelay records the one-way delay of a received packet.
func (m *FlowMonitor) OnDelay(key FlowKey, d SimTime) {
	r := m.record(key)

	if len(r.delays) > 0 {
		j := d - r.lastDelay
		if j < 0 {
			j = -j
		}

		r.JitterSum += j
	}

	r.DelaySum += d
	r.lastDelay = d
	r.delays = append(r.delays, d.Seconds())

	count.MarkDistribution("flow_delay", d.Seconds())
}

// Snapshot copies every record; it is fine to call in the middle of
// a run.
func (m *FlowMonitor) Snapshot() map[FlowKey]FlowRecord {
	out := make(map[FlowKey]FlowRecord, len(m.flows))
	for k, r := range m.flows {
		out[k] = r.clone()
	}

	return out
}

// Flows returns copies of the records in flow id order.
func (m *FlowMonitor) Flows() []FlowRecord {
	out := make([]FlowRecord, len(m.order))
	for i, r := range m.order {
		out[i] = r.clone()
	}

	return out
}

// Flow returns a copy of one record.
func (m *FlowMonitor) Flow(key FlowKey) (FlowRecord, bool) {
	r, ok := m.flows[key]
	if !ok {
		return FlowRecord{}, false
	}

	return r.clone(), true
}

// LostCount returns sent minus received packets for the flow.  More
// received than sent is an invariant violation: the count is
// reported as 0 along with ErrInvariantViolation.
func (m *FlowMonitor) LostCount(key FlowKey) (uint64, error) {
	r, ok := m.flows[key]
	if !ok {
		return 0, nil
	}

	lost := r.LostPackets()
	if lost < 0 {
		err := fmt.Errorf("%w: flow %d received %d packets but sent %d", ErrInvariantViolation,
			r.ID, r.RxPackets, r.TxPackets)
		m.violation(err)

		return 0, err
	}

	return uint64(lost), nil
}

// CheckInvariants reports every flow that received more than it sent.
func (m *FlowMonitor) CheckInvariants() error {
	var errs []error

	for _, r := range m.order {
		if r.RxBytes > r.TxBytes || r.RxPackets > r.TxPackets {
			errs = append(errs, fmt.Errorf("%w: flow %d rx %d/%dB tx %d/%dB", ErrInvariantViolation,
				r.ID, r.RxPackets, r.RxBytes, r.TxPackets, r.TxBytes))
		}
	}

	return errors.Join(errs...)
}

func (m *FlowMonitor) violation(err error) {
	count.Incr("flowmon_invariant_violation")
	ml.Ls(err.Error())

	if m.Strict {
		panic(err)
	}
}
