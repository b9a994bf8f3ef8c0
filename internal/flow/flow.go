// Package flow implements the per-flow entity: identity, directional
// counters, inter-arrival and packet-length statistics, active/idle
// sub-flow segmentation, TCP validity tracking, and record export.
//
// A Flow is mutated only by Add and finalized exactly once by Export; it
// holds no reference to the table that owns it and does no I/O of its
// own. Exactly one owner mutates a given Flow at a time.
package flow

import (
	"fmt"

	"flowtag/internal/packetview"
	"flowtag/internal/runningstats"
	"flowtag/internal/tcpstate"
)

// AddResult is the outcome of feeding one packet to a Flow.
type AddResult uint8

const (
	// Accepted means the packet was folded into the flow's statistics
	// and the flow continues.
	Accepted AddResult = iota
	// Terminated means the packet was accepted and, as a result, both
	// TCP half-connections reached CLOSED: the flow is complete.
	Terminated
	// Expired means the packet's gap since the flow's last packet
	// exceeds FLOW_TIMEOUT; the packet was rejected and the flow was
	// not mutated. The caller must evict the old flow and re-insert
	// this packet under a fresh flow with the same key.
	Expired
	// Reordered means the packet's timestamp precedes the flow's last
	// recorded time; it was logged and ignored without mutating the
	// flow.
	Reordered
)

func (r AddResult) String() string {
	switch r {
	case Accepted:
		return "Accepted"
	case Terminated:
		return "Terminated"
	case Expired:
		return "Expired"
	case Reordered:
		return "Reordered"
	default:
		return "Unknown"
	}
}

// Record is the fixed 44-field output schema emitted for each completed,
// valid flow.
type Record struct {
	SrcIP   string `csv:"srcip"`
	SrcPort uint16 `csv:"srcport"`
	DstIP   string `csv:"dstip"`
	DstPort uint16 `csv:"dstport"`
	Proto   uint8  `csv:"proto"`

	TotalFPackets int64 `csv:"total_fpackets"`
	TotalFVolume  int64 `csv:"total_fvolume"`
	TotalBPackets int64 `csv:"total_bpackets"`
	TotalBVolume  int64 `csv:"total_bvolume"`

	MinFPktl  int64 `csv:"min_fpktl"`
	MeanFPktl int64 `csv:"mean_fpktl"`
	MaxFPktl  int64 `csv:"max_fpktl"`
	StdFPktl  int64 `csv:"std_fpktl"`

	MinBPktl  int64 `csv:"min_bpktl"`
	MeanBPktl int64 `csv:"mean_bpktl"`
	MaxBPktl  int64 `csv:"max_bpktl"`
	StdBPktl  int64 `csv:"std_bpktl"`

	MinFiat  int64 `csv:"min_fiat"`
	MeanFiat int64 `csv:"mean_fiat"`
	MaxFiat  int64 `csv:"max_fiat"`
	StdFiat  int64 `csv:"std_fiat"`

	MinBiat  int64 `csv:"min_biat"`
	MeanBiat int64 `csv:"mean_biat"`
	MaxBiat  int64 `csv:"max_biat"`
	StdBiat  int64 `csv:"std_biat"`

	Duration int64 `csv:"duration"`

	MinActive  int64 `csv:"min_active"`
	MeanActive int64 `csv:"mean_active"`
	MaxActive  int64 `csv:"max_active"`
	StdActive  int64 `csv:"std_active"`

	MinIdle  int64 `csv:"min_idle"`
	MeanIdle int64 `csv:"mean_idle"`
	MaxIdle  int64 `csv:"max_idle"`
	StdIdle  int64 `csv:"std_idle"`

	SflowFPackets int64 `csv:"sflow_fpackets"`
	SflowFBytes   int64 `csv:"sflow_fbytes"`
	SflowBPackets int64 `csv:"sflow_bpackets"`
	SflowBBytes   int64 `csv:"sflow_bbytes"`

	FpshCnt int64 `csv:"fpsh_cnt"`
	BpshCnt int64 `csv:"bpsh_cnt"`
	FurgCnt int64 `csv:"furg_cnt"`
	BurgCnt int64 `csv:"burg_cnt"`

	TotalFHLen int64 `csv:"total_fhlen"`
	TotalBHLen int64 `csv:"total_bhlen"`
}

// Flow holds all per-flow state for one conversation.
type Flow struct {
	ID int64

	firstPacket packetview.PacketView
	firstTime   float64
	flast       float64 // 0 if no forward packet seen since the last sub-flow boundary
	blast       float64 // 0 if no backward packet seen since the last sub-flow boundary

	srcIP, dstIP     string
	srcPort, dstPort uint16
	proto            uint8
	dscp             uint8

	fpackets, bpackets int64
	fvolume, bvolume   int64
	fhlen, bhlen       int64

	fpktl, bpktl runningstats.Stats
	fiat, biat   runningstats.Stats

	activeStart float64
	active      runningstats.Stats
	idle        runningstats.Stats

	fpshCnt, bpshCnt int64
	furgCnt, burgCnt int64

	valid bool

	// UDP validity bookkeeping: a payload-bearing packet (len > 8) was
	// observed in either direction.
	hasData bool

	// TCP-only. Zero value (tcpstate.Start) for non-TCP flows, unused.
	cstate, sstate tcpstate.State

	exported bool

	timeout       float64 // FLOW_TIMEOUT, seconds
	idleThreshold float64 // IDLE_THRESHOLD, seconds
}

// New constructs a Flow from its first packet. timeout and idleThreshold
// are the flow's FLOW_TIMEOUT and IDLE_THRESHOLD, fixed for the flow's
// lifetime (they come from the owning flowtable.Table's Config).
func New(pkt packetview.PacketView, id int64, timeout, idleThreshold float64) *Flow {
	f := &Flow{
		ID:            id,
		firstPacket:   pkt,
		firstTime:     pkt.Time,
		flast:         pkt.Time,
		blast:         0,
		srcIP:         pkt.SrcIP,
		dstIP:         pkt.DstIP,
		srcPort:       pkt.SrcPort,
		dstPort:       pkt.DstPort,
		proto:         pkt.Proto,
		dscp:          pkt.DSCP,
		activeStart:   pkt.Time,
		timeout:       timeout,
		idleThreshold: idleThreshold,
	}

	f.fpackets = 1
	f.fvolume = int64(pkt.Len)
	f.fpktl.Push(float64(pkt.Len))
	f.fhlen = int64(pkt.IPHLen + pkt.PRHLen)

	if pkt.Proto == packetview.ProtoTCP {
		f.cstate = tcpstate.Start
		f.sstate = tcpstate.Start
		flags := tcpstate.Flags(pkt.Flags)
		if flags.Has(tcpstate.PSH) {
			f.fpshCnt = 1
		}
		if flags.Has(tcpstate.URG) {
			f.furgCnt = 1
		}
	}

	f.updateStatus(pkt)
	return f
}

// String returns a compact debug form, mirroring the reference
// implementation's __repr__: "[id:(srcip,srcport,dstip,dstport,proto)]".
func (f *Flow) String() string {
	return fmt.Sprintf("[%d:(%s,%d,%s,%d,%d)]", f.ID, f.srcIP, f.srcPort, f.dstIP, f.dstPort, f.proto)
}

// Valid reports whether the flow has satisfied its validity condition: a
// UDP flow that has seen at least one packet with len > 8 (either
// direction) and at least one backward packet, or a TCP flow that reached
// ESTABLISHED and carried at least one payload-bearing segment.
func (f *Flow) Valid() bool { return f.valid }

// LastTime returns the timestamp of the most recent packet in either
// direction, 0 if neither direction has one (only possible transiently
// right after a sub-flow boundary reset).
func (f *Flow) LastTime() float64 {
	switch {
	case f.blast == 0:
		return f.flast
	case f.flast == 0:
		return f.blast
	case f.flast > f.blast:
		return f.flast
	default:
		return f.blast
	}
}

// IsIdle reports whether the flow has had no traffic for longer than its
// configured FLOW_TIMEOUT as of now — the condition flowtable.Table.Sweep
// checks per flow.
func (f *Flow) IsIdle(now float64) bool {
	return now-f.LastTime() > f.timeout
}

// Add feeds one packet to the flow: updates directional counters,
// inter-arrival and packet-length statistics, active/idle segmentation,
// and TCP half-connection state, reporting the outcome for the flow.
func (f *Flow) Add(pkt packetview.PacketView) AddResult {
	now := pkt.Time
	last := f.LastTime()
	diff := now - last

	if diff > f.timeout {
		return Expired
	}

	if now < last {
		return Reordered
	}

	forward := pkt.SrcIP == f.firstPacket.SrcIP

	if diff > f.idleThreshold {
		f.idle.Push(diff)
		f.active.Push(last - f.activeStart)
		f.flast = 0
		f.blast = 0
		f.activeStart = now
	}

	hlen := int64(pkt.IPHLen + pkt.PRHLen)
	length := float64(pkt.Len)

	if forward {
		f.fpktl.Push(length)
		f.fpackets++
		f.fvolume += int64(pkt.Len)
		f.fhlen += hlen
		if f.flast > 0 {
			f.fiat.Push(now - f.flast)
		}
		if pkt.Proto == packetview.ProtoTCP {
			flags := tcpstate.Flags(pkt.Flags)
			if flags.Has(tcpstate.PSH) {
				f.fpshCnt++
			}
			if flags.Has(tcpstate.URG) {
				f.furgCnt++
			}
		}
		f.flast = now
	} else {
		if f.blast == 0 && f.dscp == 0 {
			f.dscp = pkt.DSCP
		}
		f.bpktl.Push(length)
		f.bpackets++
		f.bvolume += int64(pkt.Len)
		f.bhlen += hlen
		if f.blast > 0 {
			f.biat.Push(now - f.blast)
		}
		if pkt.Proto == packetview.ProtoTCP {
			flags := tcpstate.Flags(pkt.Flags)
			if flags.Has(tcpstate.PSH) {
				f.bpshCnt++
			}
			if flags.Has(tcpstate.URG) {
				f.burgCnt++
			}
		}
		f.blast = now
	}

	f.updateStatus(pkt)

	if pkt.Proto == packetview.ProtoTCP && f.cstate == tcpstate.Closed && f.sstate == tcpstate.Closed {
		return Terminated
	}
	return Accepted
}

func (f *Flow) updateStatus(pkt packetview.PacketView) {
	switch pkt.Proto {
	case packetview.ProtoUDP:
		if f.valid {
			return
		}
		if pkt.Len > 8 {
			f.hasData = true
		}
		if f.hasData && f.bpackets > 0 {
			f.valid = true
		}
	case packetview.ProtoTCP:
		if f.cstate == tcpstate.Established && pkt.Len > pkt.IPHLen+pkt.PRHLen {
			f.valid = true
		}
		pdir := tcpstate.Forward
		if pkt.SrcIP != f.firstPacket.SrcIP {
			pdir = tcpstate.Backward
		}
		f.cstate = tcpstate.Transition(f.cstate, tcpstate.Flags(pkt.Flags), tcpstate.Forward, pdir)
		f.sstate = tcpstate.Transition(f.sstate, tcpstate.Flags(pkt.Flags), tcpstate.Backward, pdir)
	}
}

// Export finalizes and formats the flow. It must be called at most once
// per flow; a second call panics rather than silently double-applying
// the closing active-burst push.
func (f *Flow) Export() (Record, error) {
	if f.exported {
		panic(fmt.Sprintf("flow %d: export called twice", f.ID))
	}
	f.exported = true

	last := f.LastTime()
	f.active.Push(last - f.activeStart)

	if f.fpackets <= 0 {
		return Record{}, fmt.Errorf("flow %d: internal inconsistency: fpackets == 0 at export", f.ID)
	}
	duration := last - f.firstTime
	if duration <= 0 {
		return Record{}, fmt.Errorf("flow %d: internal inconsistency: duration <= 0 at export", f.ID)
	}
	if f.active.Count() == 0 {
		return Record{}, fmt.Errorf("flow %d: internal inconsistency: zero active segments at export", f.ID)
	}

	meanBPktl := f.bpktl.Mean()
	if f.bpackets == 0 {
		meanBPktl = -1
	}

	activeCount := int64(f.active.Count())

	r := Record{
		SrcIP:   f.srcIP,
		SrcPort: f.srcPort,
		DstIP:   f.dstIP,
		DstPort: f.dstPort,
		Proto:   f.proto,

		TotalFPackets: f.fpackets,
		TotalFVolume:  f.fvolume,
		TotalBPackets: f.bpackets,
		TotalBVolume:  f.bvolume,

		MinFPktl:  int64(f.fpktl.Min()),
		MeanFPktl: int64(f.fpktl.Mean()),
		MaxFPktl:  int64(f.fpktl.Max()),
		StdFPktl:  int64(f.fpktl.Stddev()),

		MinBPktl:  int64(f.bpktl.Min()),
		MeanBPktl: int64(meanBPktl),
		MaxBPktl:  int64(f.bpktl.Max()),
		StdBPktl:  int64(f.bpktl.Stddev()),

		MinFiat:  microseconds(f.fiat.Min()),
		MeanFiat: microseconds(f.fiat.Mean()),
		MaxFiat:  microseconds(f.fiat.Max()),
		StdFiat:  microseconds(f.fiat.Stddev()),

		MinBiat:  microseconds(f.biat.Min()),
		MeanBiat: microseconds(f.biat.Mean()),
		MaxBiat:  microseconds(f.biat.Max()),
		StdBiat:  microseconds(f.biat.Stddev()),

		Duration: microseconds(duration),

		MinActive:  microseconds(f.active.Min()),
		MeanActive: microseconds(f.active.Mean()),
		MaxActive:  microseconds(f.active.Max()),
		StdActive:  microseconds(f.active.Stddev()),

		MinIdle:  microseconds(f.idle.Min()),
		MeanIdle: microseconds(f.idle.Mean()),
		MaxIdle:  microseconds(f.idle.Max()),
		StdIdle:  microseconds(f.idle.Stddev()),

		SflowFPackets: f.fpackets / activeCount,
		SflowFBytes:   f.fvolume / activeCount,
		SflowBPackets: f.bpackets / activeCount,
		SflowBBytes:   f.bvolume / activeCount,

		FpshCnt: f.fpshCnt,
		BpshCnt: f.bpshCnt,
		FurgCnt: f.furgCnt,
		BurgCnt: f.burgCnt,

		TotalFHLen: f.fhlen,
		TotalBHLen: f.bhlen,
	}
	return r, nil
}

// microseconds rounds a seconds-denominated duration to the nearest
// integer microsecond.
func microseconds(seconds float64) int64 {
	if seconds >= 0 {
		return int64(seconds*1_000_000 + 0.5)
	}
	return -int64(-seconds*1_000_000 + 0.5)
}
