// -*- tab-width:2 -*-

package sim

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlowSummary is the serialized form of a FlowRecord.
type FlowSummary struct {
	FlowID          int     `json:"flowid" yaml:"flowid"`
	Protocol        string  `json:"protocol" yaml:"protocol"`
	Source          string  `json:"source" yaml:"source"`
	Destination     string  `json:"destination" yaml:"destination"`
	TxPackets       uint64  `json:"txpackets" yaml:"txpackets"`
	TxBytes         uint64  `json:"txbytes" yaml:"txbytes"`
	RxPackets       uint64  `json:"rxpackets" yaml:"rxpackets"`
	RxBytes         uint64  `json:"rxbytes" yaml:"rxbytes"`
	LostPackets     int64   `json:"lostpackets" yaml:"lostpackets"`
	FirstTxSeconds  float64 `json:"firsttx" yaml:"firsttx"`
	LastRxSeconds   float64 `json:"lastrx" yaml:"lastrx"`
	ThroughputBps   float64 `json:"throughputbps" yaml:"throughputbps"`
	MeanDelaySec    float64 `json:"meandelay" yaml:"meandelay"`
	DelayStdDevSec  float64 `json:"delaystddev" yaml:"delaystddev"`
	DelayP95Sec     float64 `json:"delayp95" yaml:"delayp95"`
	JitterSumSecond float64 `json:"jittersum" yaml:"jittersum"`
}

// FlowReport is what WriteToFile stores.
type FlowReport struct {
	ExpName string        `json:"expname" yaml:"expname"`
	EndTime float64       `json:"endtime" yaml:"endtime"`
	Flows   []FlowSummary `json:"flows" yaml:"flows"`
}

// Summary converts the record for serialization.
func (r *FlowRecord) Summary() FlowSummary {
	return FlowSummary{
		FlowID:          r.ID,
		Protocol:        r.Key.Proto.String(),
		Source:          r.Key.Src.String(),
		Destination:     r.Key.Dst.String(),
		TxPackets:       r.TxPackets,
		TxBytes:         r.TxBytes,
		RxPackets:       r.RxPackets,
		RxBytes:         r.RxBytes,
		LostPackets:     r.LostPackets(),
		FirstTxSeconds:  r.FirstTx.Seconds(),
		LastRxSeconds:   r.LastRx.Seconds(),
		ThroughputBps:   r.Throughput(),
		MeanDelaySec:    r.MeanDelay().Seconds(),
		DelayStdDevSec:  r.DelayStdDev(),
		DelayP95Sec:     r.DelayQuantile(0.95), //nolint:mnd
		JitterSumSecond: r.JitterSum.Seconds(),
	}
}

// Report builds a FlowReport of every flow.
func (m *FlowMonitor) Report(name string, end SimTime) FlowReport {
	rep := FlowReport{ExpName: name, EndTime: end.Seconds()}
	for _, r := range m.order {
		rep.Flows = append(rep.Flows, r.Summary())
	}

	return rep
}

// WriteSummary prints one block per flow.
func (m *FlowMonitor) WriteSummary(w io.Writer) error {
	for _, r := range m.order {
		s := r.Summary()

		_, err := fmt.Fprintf(w,
			"Flow %d (%s %s -> %s)\n"+
				"  Tx Packets: %d\n  Tx Bytes:   %d\n"+
				"  Rx Packets: %d\n  Rx Bytes:   %d\n"+
				"  Lost Packets: %d\n"+
				"  Throughput: %.3f Kbps\n"+
				"  Mean Delay: %.3f ms (stddev %.3f ms, p95 %.3f ms)\n",
			s.FlowID, s.Protocol, s.Source, s.Destination,
			s.TxPackets, s.TxBytes, s.RxPackets, s.RxBytes, s.LostPackets,
			s.ThroughputBps/1000,                                     //nolint:mnd
			s.MeanDelaySec*1000, s.DelayStdDevSec*1000, s.DelayP95Sec*1000) //nolint:mnd
		if err != nil {
			return err
		}
	}

	return nil
}

// These mirror the layout of an ns-3 flow monitor file.
type xmlFlowMonitor struct {
	XMLName    xml.Name        `xml:"FlowMonitor"`
	FlowStats  []xmlFlowStats  `xml:"FlowStats>Flow"`
	Classifier []xmlClassifier `xml:"Ipv4FlowClassifier>Flow"`
}

type xmlFlowStats struct {
	FlowID            int    `xml:"flowId,attr"`
	TimeFirstTxPacket string `xml:"timeFirstTxPacket,attr"`
	TimeFirstRxPacket string `xml:"timeFirstRxPacket,attr"`
	TimeLastTxPacket  string `xml:"timeLastTxPacket,attr"`
	TimeLastRxPacket  string `xml:"timeLastRxPacket,attr"`
	DelaySum          string `xml:"delaySum,attr"`
	JitterSum         string `xml:"jitterSum,attr"`
	TxBytes           uint64 `xml:"txBytes,attr"`
	RxBytes           uint64 `xml:"rxBytes,attr"`
	TxPackets         uint64 `xml:"txPackets,attr"`
	RxPackets         uint64 `xml:"rxPackets,attr"`
	LostPackets       int64  `xml:"lostPackets,attr"`
}

type xmlClassifier struct {
	FlowID          int    `xml:"flowId,attr"`
	SourceAddress   string `xml:"sourceAddress,attr"`
	DestAddress     string `xml:"destinationAddress,attr"`
	Protocol        uint8  `xml:"protocol,attr"`
	SourcePort      uint16 `xml:"sourcePort,attr"`
	DestinationPort uint16 `xml:"destinationPort,attr"`
}

func nsString(t SimTime) string {
	return fmt.Sprintf("%+dns", int64(t))
}

// WriteXML writes the flows in ns-3 flow monitor layout.
func (m *FlowMonitor) WriteXML(w io.Writer) error {
	doc := xmlFlowMonitor{}

	for _, r := range m.order {
		doc.FlowStats = append(doc.FlowStats, xmlFlowStats{
			FlowID:            r.ID,
			TimeFirstTxPacket: nsString(r.FirstTx),
			TimeFirstRxPacket: nsString(r.FirstRx),
			TimeLastTxPacket:  nsString(r.LastTx),
			TimeLastRxPacket:  nsString(r.LastRx),
			DelaySum:          nsString(r.DelaySum),
			JitterSum:         nsString(r.JitterSum),
			TxBytes:           r.TxBytes,
			RxBytes:           r.RxBytes,
			TxPackets:         r.TxPackets,
			RxPackets:         r.RxPackets,
			LostPackets:       r.LostPackets(),
		})
		doc.Classifier = append(doc.Classifier, xmlClassifier{
			FlowID:          r.ID,
			SourceAddress:   r.Key.Src.Addr.String(),
			DestAddress:     r.Key.Dst.Addr.String(),
			Protocol:        uint8(r.Key.Proto),
			SourcePort:      r.Key.Src.Port,
			DestinationPort: r.Key.Dst.Port,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return err
	}

	_, err := io.WriteString(w, "\n")

	return err
}

// WriteToFile stores the flows in filename.  The format follows the
// extension: .yaml/.yml, .json, or XML for anything else (ns-3
// scripts name it .flowmon).
func (m *FlowMonitor) WriteToFile(filename, expName string, end SimTime) error {
	var (
		bytes []byte
		err   error
	)

	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		bytes, err = yaml.Marshal(m.Report(expName, end))
	case ".json":
		bytes, err = json.MarshalIndent(m.Report(expName, end), "", "\t")
	default:
		var sb strings.Builder

		err = m.WriteXML(&sb)
		bytes = []byte(sb.String())
	}

	if err != nil {
		return fmt.Errorf("encode %s: %w", filename, err)
	}

	if err := os.WriteFile(filename, bytes, 0o644); err != nil { //nolint:gosec,mnd
		return fmt.Errorf("write %s: %w", filename, err)
	}

	return nil
}
