// Package decode adapts gopacket.Packet values into packetview.PacketView,
// the only input the flow engine understands. It is the one package in
// this repo allowed to import gopacket/layers on the engine's behalf;
// nothing in internal/flow, internal/flowtable, or internal/tcpstate
// imports it back.
//
// It extracts the full PacketView the engine needs — header lengths,
// DSCP, and the raw TCP flag byte rather than individual booleans — since
// the flow engine works directly with the bitfield.
package decode

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"flowtag/internal/packetview"
)

// Extract decodes one packet into a PacketView relative to epoch (the
// timestamp of the first packet of the capture), giving the
// monotonically increasing, seconds-denominated Time the engine expects.
// ok is false for anything that isn't an IPv4 TCP or UDP packet — IPv6 and
// any other protocol are out of scope, and the caller should skip the
// packet before it ever reaches flowtable.Table.
func Extract(pkt gopacket.Packet, epoch time.Time) (packetview.PacketView, bool) {
	var pv packetview.PacketView

	ip4Layer := pkt.Layer(layers.LayerTypeIPv4)
	if ip4Layer == nil {
		return pv, false
	}
	ip4 := ip4Layer.(*layers.IPv4)

	pv.SrcIP = ip4.SrcIP.String()
	pv.DstIP = ip4.DstIP.String()
	pv.Len = int(ip4.Length)
	pv.IPHLen = int(ip4.IHL) * 4
	pv.DSCP = ip4.TOS >> 2

	ts := pkt.Metadata().Timestamp
	pv.Time = ts.Sub(epoch).Seconds()

	switch {
	case ip4.Protocol == layers.IPProtocolTCP:
		tcpLayer := pkt.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			return pv, false
		}
		tcp := tcpLayer.(*layers.TCP)
		pv.Proto = packetview.ProtoTCP
		pv.SrcPort = uint16(tcp.SrcPort)
		pv.DstPort = uint16(tcp.DstPort)
		pv.PRHLen = int(tcp.DataOffset) * 4
		pv.Flags = tcpFlagByte(tcp)

	case ip4.Protocol == layers.IPProtocolUDP:
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			return pv, false
		}
		udp := udpLayer.(*layers.UDP)
		pv.Proto = packetview.ProtoUDP
		pv.SrcPort = uint16(udp.SrcPort)
		pv.DstPort = uint16(udp.DstPort)
		pv.PRHLen = 8

	default:
		return pv, false
	}

	return pv, true
}

// tcpFlagByte packs gopacket's individual flag booleans into a single
// bitfield: FIN=0x01, SYN=0x02, RST=0x04, PSH=0x08, ACK=0x10, URG=0x20.
func tcpFlagByte(tcp *layers.TCP) uint8 {
	var f uint8
	if tcp.FIN {
		f |= 0x01
	}
	if tcp.SYN {
		f |= 0x02
	}
	if tcp.RST {
		f |= 0x04
	}
	if tcp.PSH {
		f |= 0x08
	}
	if tcp.ACK {
		f |= 0x10
	}
	if tcp.URG {
		f |= 0x20
	}
	return f
}
