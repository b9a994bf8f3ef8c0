package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderIncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(FlowsCreated)
	Recorder{}.FlowCreated()
	if got := testutil.ToFloat64(FlowsCreated); got != before+1 {
		t.Fatalf("FlowsCreated = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(FlowsTerminated)
	Recorder{}.FlowTerminated()
	if got := testutil.ToFloat64(FlowsTerminated); got != before+1 {
		t.Fatalf("FlowsTerminated = %v, want %v", got, before+1)
	}
}

func TestRecorderFlowExportedSplitsByValidity(t *testing.T) {
	beforeTrue := testutil.ToFloat64(FlowsExported.WithLabelValues("true"))
	beforeFalse := testutil.ToFloat64(FlowsExported.WithLabelValues("false"))

	Recorder{}.FlowExported(true)
	Recorder{}.FlowExported(false)

	if got := testutil.ToFloat64(FlowsExported.WithLabelValues("true")); got != beforeTrue+1 {
		t.Fatalf("FlowsExported{valid=true} = %v, want %v", got, beforeTrue+1)
	}
	if got := testutil.ToFloat64(FlowsExported.WithLabelValues("false")); got != beforeFalse+1 {
		t.Fatalf("FlowsExported{valid=false} = %v, want %v", got, beforeFalse+1)
	}
}

func TestRecorderPacketDroppedLabelsByReason(t *testing.T) {
	before := testutil.ToFloat64(PacketsDropped.WithLabelValues("unsupported-protocol"))
	Recorder{}.PacketDropped("unsupported-protocol")
	if got := testutil.ToFloat64(PacketsDropped.WithLabelValues("unsupported-protocol")); got != before+1 {
		t.Fatalf("PacketsDropped{reason=unsupported-protocol} = %v, want %v", got, before+1)
	}
}
