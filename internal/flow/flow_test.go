package flow

import (
	"testing"

	"flowtag/internal/packetview"
)

const (
	timeout = 600.0
	idle    = 1.0
)

func pkt(t float64, src, dst string, srcPort, dstPort uint16, proto uint8, length int, flags uint8) packetview.PacketView {
	return packetview.PacketView{
		Time: t, SrcIP: src, DstIP: dst, SrcPort: srcPort, DstPort: dstPort,
		Proto: proto, Len: length, IPHLen: 20, PRHLen: protoHlen(proto), Flags: flags,
	}
}

func protoHlen(proto uint8) int {
	if proto == packetview.ProtoTCP {
		return 20
	}
	return 8
}

// S1 — UDP one-way: never valid.
func TestUDPOneWayInvalid(t *testing.T) {
	f := New(pkt(0.0, "A", "B", 1000, 53, packetview.ProtoUDP, 60, 0), 1, timeout, idle)
	f.Add(pkt(0.5, "A", "B", 1000, 53, packetview.ProtoUDP, 60, 0))
	if f.Valid() {
		t.Fatalf("one-way UDP flow should not be valid")
	}
}

// S2 — UDP bidirectional: valid, exact stats.
func TestUDPBidirectionalValid(t *testing.T) {
	f := New(pkt(0.0, "A", "B", 1000, 53, packetview.ProtoUDP, 60, 0), 1, timeout, idle)
	if result := f.Add(pkt(0.3, "B", "A", 53, 1000, packetview.ProtoUDP, 100, 0)); result != Accepted {
		t.Fatalf("Add() = %v, want Accepted", result)
	}
	if !f.Valid() {
		t.Fatalf("bidirectional UDP flow should be valid")
	}
	rec, err := f.Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if rec.TotalFPackets != 1 || rec.TotalBPackets != 1 {
		t.Fatalf("packet counts = %d/%d, want 1/1", rec.TotalFPackets, rec.TotalBPackets)
	}
	if rec.TotalFVolume != 60 || rec.TotalBVolume != 100 {
		t.Fatalf("volumes = %d/%d, want 60/100", rec.TotalFVolume, rec.TotalBVolume)
	}
	if rec.Duration != 300000 {
		t.Fatalf("duration = %d, want 300000", rec.Duration)
	}
	if rec.MinFPktl != 60 || rec.MaxFPktl != 60 || rec.MeanFPktl != 60 {
		t.Fatalf("fpktl stats = %d/%d/%d, want all 60", rec.MinFPktl, rec.MeanFPktl, rec.MaxFPktl)
	}
	if rec.MinBPktl != 100 || rec.MaxBPktl != 100 || rec.MeanBPktl != 100 {
		t.Fatalf("bpktl stats = %d/%d/%d, want all 100", rec.MinBPktl, rec.MeanBPktl, rec.MaxBPktl)
	}
	if rec.StdFPktl != 0 || rec.StdBPktl != 0 {
		t.Fatalf("stddevs should be 0 for single samples")
	}
	if rec.MeanActive != 300000 {
		t.Fatalf("mean active = %d, want 300000 (single burst)", rec.MeanActive)
	}
}

// S3 — TCP complete handshake + payload + teardown.
func TestTCPHandshakePayloadTeardown(t *testing.T) {
	const SYN, ACK, PSH, FIN = 0x02, 0x10, 0x08, 0x01

	f := New(pkt(0.0, "A", "B", 1234, 80, packetview.ProtoTCP, 40, SYN), 1, timeout, idle)

	// B -> A SYN+ACK
	f.Add(pkt(0.01, "B", "A", 80, 1234, packetview.ProtoTCP, 40, SYN|ACK))
	// A -> B ACK
	f.Add(pkt(0.02, "A", "B", 1234, 80, packetview.ProtoTCP, 40, ACK))
	// A -> B PSH+ACK with payload (len > hlen)
	f.Add(pkt(0.03, "A", "B", 1234, 80, packetview.ProtoTCP, 60, PSH|ACK))
	// B -> A ACK
	f.Add(pkt(0.04, "B", "A", 80, 1234, packetview.ProtoTCP, 40, ACK))
	// A -> B FIN+ACK
	f.Add(pkt(0.05, "A", "B", 1234, 80, packetview.ProtoTCP, 40, FIN|ACK))
	// B -> A ACK (one-sided close: sstate watches Backward and only
	// advances on a backward-initiated SYN/FIN/RST, so it never leaves
	// Syn here; only cstate reaches Closed, and Add keeps returning
	// Accepted since termination requires both states Closed)
	result := f.Add(pkt(0.06, "B", "A", 80, 1234, packetview.ProtoTCP, 40, ACK))

	if result != Accepted {
		t.Fatalf("final Add() = %v, want Accepted (one-sided close never terminates)", result)
	}
	if !f.Valid() {
		t.Fatalf("flow should be valid after established payload")
	}
	if f.fpshCnt < 1 {
		t.Fatalf("fpshCnt = %d, want >= 1", f.fpshCnt)
	}
	rec, err := f.Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if rec.FpshCnt < 1 {
		t.Fatalf("record FpshCnt = %d, want >= 1", rec.FpshCnt)
	}
}

// S4 — idle-gap segmentation.
func TestIdleGapSegmentation(t *testing.T) {
	const SYN = 0x02
	f := New(pkt(0.0, "A", "B", 1000, 2000, packetview.ProtoUDP, 100, 0), 1, timeout, idle)
	f.Add(pkt(0.2, "A", "B", 1000, 2000, packetview.ProtoUDP, 100, 0))
	f.Add(pkt(2.2, "A", "B", 1000, 2000, packetview.ProtoUDP, 100, 0))
	f.Add(pkt(2.5, "A", "B", 1000, 2000, packetview.ProtoUDP, 100, 0))
	f.Add(pkt(2.6, "B", "A", 2000, 1000, packetview.ProtoUDP, 100, 0))

	rec, err := f.Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if f.active.Count() != 2 {
		t.Fatalf("active_count = %d, want 2", f.active.Count())
	}
	if f.idle.Count() != 1 {
		t.Fatalf("idle_count = %d, want 1", f.idle.Count())
	}
	wantSflow := rec.TotalFPackets / 2
	if rec.SflowFPackets != wantSflow {
		t.Fatalf("sflow_fpackets = %d, want %d", rec.SflowFPackets, wantSflow)
	}
	if rec.MeanIdle != 2000000 {
		t.Fatalf("mean idle = %d µs, want 2000000 (single 2.0s gap)", rec.MeanIdle)
	}
}

// S5 — flow timeout re-keying is exercised at the flowtable level, not
// here: Flow.Add alone cannot re-insert a packet under the same key.
// Flow-level behavior under test: Add returns Expired without mutating.
func TestAddExpiredDoesNotMutate(t *testing.T) {
	f := New(pkt(0.0, "A", "B", 1000, 2000, packetview.ProtoTCP, 40, 0x02), 1, timeout, idle)
	before := f.fpackets
	result := f.Add(pkt(601, "A", "B", 1000, 2000, packetview.ProtoTCP, 40, 0x02))
	if result != Expired {
		t.Fatalf("Add() past timeout = %v, want Expired", result)
	}
	if f.fpackets != before {
		t.Fatalf("fpackets changed on expired packet: %d -> %d", before, f.fpackets)
	}
}

// S6 — reorder tolerance.
func TestReorderTolerance(t *testing.T) {
	f := New(pkt(0.0, "A", "B", 1000, 2000, packetview.ProtoUDP, 60, 0), 1, timeout, idle)
	f.Add(pkt(0.1, "A", "B", 1000, 2000, packetview.ProtoUDP, 60, 0))
	result := f.Add(pkt(0.05, "A", "B", 1000, 2000, packetview.ProtoUDP, 60, 0))
	if result != Reordered {
		t.Fatalf("reordered Add() = %v, want Reordered", result)
	}
	if f.fpackets != 2 {
		t.Fatalf("fpackets = %d, want 2 (reordered packet ignored)", f.fpackets)
	}
}

func TestExportTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("second Export() should panic")
		}
	}()
	f := New(pkt(0.0, "A", "B", 1000, 2000, packetview.ProtoUDP, 60, 0), 1, timeout, idle)
	f.Add(pkt(0.3, "B", "A", 2000, 1000, packetview.ProtoUDP, 60, 0))
	if _, err := f.Export(); err != nil {
		t.Fatalf("first Export() error = %v", err)
	}
	f.Export()
}

func TestKeyOfIsOrderIndependent(t *testing.T) {
	p1 := pkt(0, "10.0.0.1", "10.0.0.2", 1234, 80, packetview.ProtoTCP, 40, 0)
	p2 := pkt(0, "10.0.0.2", "10.0.0.1", 80, 1234, packetview.ProtoTCP, 40, 0)
	if KeyOf(p1) != KeyOf(p2) {
		t.Fatalf("KeyOf not order-independent: %+v != %+v", KeyOf(p1), KeyOf(p2))
	}
}
