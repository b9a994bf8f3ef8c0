package flow

import "flowtag/internal/packetview"

// Key is the canonical 5-tuple a flow is addressed by. Swapping the two
// endpoints of a conversation yields the same Key, so forward and
// backward packets of one conversation always hash to the same flow.
type Key struct {
	Proto uint8
	IPA   string
	PortA uint16
	IPB   string
	PortB uint16
}

// KeyOf computes the canonical key for a packet, ordering the two
// endpoints lexicographically by (ip, port) so the mapping is
// order-independent.
func KeyOf(pkt packetview.PacketView) Key {
	if less(pkt.SrcIP, pkt.SrcPort, pkt.DstIP, pkt.DstPort) {
		return Key{Proto: pkt.Proto, IPA: pkt.SrcIP, PortA: pkt.SrcPort, IPB: pkt.DstIP, PortB: pkt.DstPort}
	}
	return Key{Proto: pkt.Proto, IPA: pkt.DstIP, PortA: pkt.DstPort, IPB: pkt.SrcIP, PortB: pkt.SrcPort}
}

func less(ipA string, portA uint16, ipB string, portB uint16) bool {
	if ipA != ipB {
		return ipA < ipB
	}
	return portA <= portB
}
