// Package packetview defines the immutable per-packet value the flow
// engine consumes. It has no dependency on any particular capture or
// decode library so the engine packages (tcpstate, runningstats, flow,
// flowtable) can be built and tested without gopacket anywhere in their
// import graph.
package packetview

// PacketView is produced by the decoder (internal/decode) and consumed by
// flowtable.Table.Ingest. Time is seconds, floating point, monotonic
// per-source and non-decreasing as delivered by the decoder — the engine
// tolerates local reordering but assumes the decoder never rewinds
// arbitrarily far.
type PacketView struct {
	Time    float64 // seconds, >= 0
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
	Proto   uint8 // 6 = TCP, 17 = UDP
	DSCP    uint8 // 6-bit field from the IP ToS byte
	Len     int   // IP total length, bytes
	IPHLen  int   // IP header length, bytes
	PRHLen  int   // transport (protocol) header length, bytes
	Flags   uint8 // TCP flag byte; zero for non-TCP
}

// Protocol numbers the engine recognizes. Any other value is unsupported
// and must be dropped before it reaches Table.Ingest.
const (
	ProtoTCP = 6
	ProtoUDP = 17
)
