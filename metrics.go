// -*- tab-width:2 -*-

package sim

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var flowLabels = []string{"flow_id", "protocol", "src", "dst"}

// FlowMetrics exposes a FlowMonitor to prometheus.  Values are read
// from the monitor at collection time.
type FlowMetrics struct {
	mon *FlowMonitor

	txBytes    *prometheus.Desc
	rxBytes    *prometheus.Desc
	txPackets  *prometheus.Desc
	rxPackets  *prometheus.Desc
	lost       *prometheus.Desc
	throughput *prometheus.Desc
	meanDelay  *prometheus.Desc
}

// NewFlowMetrics builds the collector; register it with a registry.
func NewFlowMetrics(mon *FlowMonitor) *FlowMetrics {
	d := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("netsim_flow_"+name, help, flowLabels, nil)
	}

	return &FlowMetrics{
		mon:        mon,
		txBytes:    d("tx_bytes_total", "Bytes sent by the flow source."),
		rxBytes:    d("rx_bytes_total", "Bytes received at the flow destination."),
		txPackets:  d("tx_packets_total", "Packets sent by the flow source."),
		rxPackets:  d("rx_packets_total", "Packets received at the flow destination."),
		lost:       d("lost_packets", "Packets sent and not received."),
		throughput: d("throughput_bps", "Received bits per second from first send to last receive."),
		meanDelay:  d("delay_mean_seconds", "Mean one-way delay."),
	}
}

// Describe implements prometheus.Collector.
func (fm *FlowMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		fm.txBytes, fm.rxBytes, fm.txPackets, fm.rxPackets, fm.lost, fm.throughput, fm.meanDelay,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (fm *FlowMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, r := range fm.mon.order {
		labels := []string{strconv.Itoa(r.ID), r.Key.Proto.String(), r.Key.Src.String(), r.Key.Dst.String()}

		ch <- prometheus.MustNewConstMetric(fm.txBytes, prometheus.CounterValue, float64(r.TxBytes), labels...)
		ch <- prometheus.MustNewConstMetric(fm.rxBytes, prometheus.CounterValue, float64(r.RxBytes), labels...)
		ch <- prometheus.MustNewConstMetric(fm.txPackets, prometheus.CounterValue, float64(r.TxPackets), labels...)
		ch <- prometheus.MustNewConstMetric(fm.rxPackets, prometheus.CounterValue, float64(r.RxPackets), labels...)
		ch <- prometheus.MustNewConstMetric(fm.lost, prometheus.GaugeValue, float64(r.LostPackets()), labels...)
		ch <- prometheus.MustNewConstMetric(fm.throughput, prometheus.GaugeValue, r.Throughput(), labels...)
		ch <- prometheus.MustNewConstMetric(fm.meanDelay, prometheus.GaugeValue, r.MeanDelay().Seconds(), labels...)
	}
}

// WriteMetricsFile writes the flow metrics in the prometheus text
// format, for the node exporter textfile collector.
func (m *FlowMonitor) WriteMetricsFile(filename string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewFlowMetrics(m)); err != nil {
		return err
	}

	return prometheus.WriteToTextfile(filename, reg)
}
