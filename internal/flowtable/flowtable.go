// Package flowtable owns the live set of flows keyed by canonical
// 5-tuple. It dispatches each packet in O(1), drives idle sweeps and
// flow termination, and hands completed flows to a Sink.
//
// Table holds exclusive ownership of every live *flow.Flow; flows are
// never shared and Table does no locking of its own — it is meant to be
// driven by a single-threaded packet pull loop. A caller that wants to
// parallelize must shard by a stable hash of flow.Key so every packet of
// one flow lands on the same Table instance — sharding within a flow is
// never safe, since statistics are commutative only within one direction.
package flowtable

import (
	"fmt"

	"go.uber.org/zap"

	"flowtag/internal/flow"
	"flowtag/internal/packetview"
)

// Config carries the flow engine's two tunables as a record passed to
// the table constructor rather than compile-time globals.
type Config struct {
	// FlowTimeout is FLOW_TIMEOUT: the maximum allowed gap, in seconds,
	// between consecutive packets of a flow before the next packet is
	// rejected as expired.
	FlowTimeout float64
	// IdleThreshold is IDLE_THRESHOLD: the gap, in seconds, beyond which
	// consecutive packets are considered to belong to different
	// sub-flows.
	IdleThreshold float64
}

// DefaultConfig returns the conventional defaults: 600s flow timeout,
// 1.0s idle threshold.
func DefaultConfig() Config {
	return Config{FlowTimeout: 600, IdleThreshold: 1.0}
}

// Sink receives completed (valid) flow records.
type Sink interface {
	Accept(flow.Record) error
}

// Recorder observes flow lifecycle events for metrics purposes. Table
// works correctly with a nil Recorder.
type Recorder interface {
	FlowCreated()
	FlowTerminated()
	FlowExpired()
	FlowSwept()
	FlowExported(valid bool)
	PacketDropped(reason string)
	// LiveFlows reports the current number of live flows in the table,
	// called after every change to its size so the gauge stays accurate
	// in both offline and live capture modes.
	LiveFlows(count int)
}

// Table is the flow dispatch table.
type Table struct {
	cfg    Config
	sink   Sink
	log    *zap.SugaredLogger
	rec    Recorder
	flows  map[flow.Key]*flow.Flow
	nextID int64
}

// New creates an empty Table. log and rec may be nil.
func New(cfg Config, sink Sink, log *zap.SugaredLogger, rec Recorder) *Table {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Table{
		cfg:   cfg,
		sink:  sink,
		log:   log,
		rec:   rec,
		flows: make(map[flow.Key]*flow.Flow),
	}
}

// Ingest dispatches one packet. It creates a new flow on key miss,
// mutates the existing flow on hit, and handles the
// terminated/expired outcomes of flow.Flow.Add, including the
// re-insertion of an expired packet as a fresh flow under the same key.
//
// Non-TCP, non-UDP packets are dropped (not fatal) before a key is even
// computed.
func (t *Table) Ingest(pkt packetview.PacketView) error {
	if pkt.Proto != packetview.ProtoTCP && pkt.Proto != packetview.ProtoUDP {
		t.recordDrop("unsupported-protocol")
		return nil
	}

	key := flow.KeyOf(pkt)
	f, exists := t.flows[key]
	if !exists {
		t.createFlow(key, pkt)
		return nil
	}

	switch result := f.Add(pkt); result {
	case flow.Reordered:
		t.log.Infow("ignoring reordered packet", "flow", f.String(), "time", pkt.Time)
		return nil

	case flow.Terminated:
		if t.rec != nil {
			t.rec.FlowTerminated()
		}
		delete(t.flows, key)
		t.updateLiveFlows()
		return t.export(f)

	case flow.Expired:
		if t.rec != nil {
			t.rec.FlowExpired()
		}
		delete(t.flows, key)
		if err := t.export(f); err != nil {
			return err
		}
		t.createFlow(key, pkt)
		return nil

	default: // flow.Accepted
		return nil
	}
}

func (t *Table) createFlow(key flow.Key, pkt packetview.PacketView) {
	t.nextID++
	f := flow.New(pkt, t.nextID, t.cfg.FlowTimeout, t.cfg.IdleThreshold)
	t.flows[key] = f
	if t.rec != nil {
		t.rec.FlowCreated()
	}
	t.updateLiveFlows()
	t.log.Debugw("flow created", "flow", f.String())
}

// Sweep evicts any flow that has been idle for longer than FlowTimeout as
// of now, exporting it first if valid.
func (t *Table) Sweep(now float64) error {
	swept := false
	for key, f := range t.flows {
		if !f.IsIdle(now) {
			continue
		}
		delete(t.flows, key)
		swept = true
		if t.rec != nil {
			t.rec.FlowSwept()
		}
		if err := t.export(f); err != nil {
			return err
		}
	}
	if swept {
		t.updateLiveFlows()
	}
	return nil
}

// Drain exports every remaining valid flow and clears the table. Called
// at end-of-stream.
func (t *Table) Drain() error {
	drained := len(t.flows) > 0
	for key, f := range t.flows {
		delete(t.flows, key)
		if err := t.export(f); err != nil {
			return err
		}
	}
	if drained {
		t.updateLiveFlows()
	}
	return nil
}

// Len returns the number of live flows, for observability/tests.
func (t *Table) Len() int { return len(t.flows) }

func (t *Table) updateLiveFlows() {
	if t.rec != nil {
		t.rec.LiveFlows(len(t.flows))
	}
}

func (t *Table) export(f *flow.Flow) error {
	if !f.Valid() {
		if t.rec != nil {
			t.rec.FlowExported(false)
		}
		return nil
	}
	rec, err := f.Export()
	if err != nil {
		t.log.Errorw("internal inconsistency exporting flow", "flow", f.String(), "error", err)
		return fmt.Errorf("flowtable: %w", err)
	}
	if t.rec != nil {
		t.rec.FlowExported(true)
	}
	if t.sink == nil {
		return nil
	}
	return t.sink.Accept(rec)
}

func (t *Table) recordDrop(reason string) {
	if t.rec != nil {
		t.rec.PacketDropped(reason)
	}
}
