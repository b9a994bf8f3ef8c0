// Package metrics defines prometheus metric types for the flow engine
// using promauto convenience constructors: each exported var is ready to
// use, registered against the default registry at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowsCreated counts flows created on a key miss.
	FlowsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtag_flows_created_total",
		Help: "Number of flows created.",
	})

	// FlowsTerminated counts flows that ended because both TCP half
	// connections reached CLOSED.
	FlowsTerminated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtag_flows_terminated_total",
		Help: "Number of flows terminated by a clean TCP close.",
	})

	// FlowsExpired counts flows evicted because the next packet's gap
	// exceeded FLOW_TIMEOUT.
	FlowsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtag_flows_expired_total",
		Help: "Number of flows evicted due to packet-gap expiry.",
	})

	// FlowsSwept counts flows evicted by the periodic idle sweep.
	FlowsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtag_flows_swept_total",
		Help: "Number of flows evicted by the idle sweep.",
	})

	// FlowsExported counts flows that reached export, split by validity;
	// only valid flows are handed to the sink.
	FlowsExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowtag_flows_exported_total",
		Help: "Number of flows that reached export, by validity.",
	}, []string{"valid"})

	// PacketsDropped counts packets dropped before reaching a flow, by
	// reason (e.g. "unsupported-protocol").
	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowtag_packets_dropped_total",
		Help: "Number of packets dropped before flow dispatch, by reason.",
	}, []string{"reason"})

	// LiveFlows tracks the current number of live flows in the table.
	LiveFlows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtag_live_flows",
		Help: "Current number of live flows in the table.",
	})
)

// Recorder adapts the package-level prometheus metrics to
// flowtable.Recorder.
type Recorder struct{}

func (Recorder) FlowCreated()    { FlowsCreated.Inc() }
func (Recorder) FlowTerminated() { FlowsTerminated.Inc() }
func (Recorder) FlowExpired()    { FlowsExpired.Inc() }
func (Recorder) FlowSwept()      { FlowsSwept.Inc() }

func (Recorder) FlowExported(valid bool) {
	if valid {
		FlowsExported.WithLabelValues("true").Inc()
	} else {
		FlowsExported.WithLabelValues("false").Inc()
	}
}

func (Recorder) PacketDropped(reason string) {
	PacketsDropped.WithLabelValues(reason).Inc()
}

func (Recorder) LiveFlows(count int) {
	LiveFlows.Set(float64(count))
}
