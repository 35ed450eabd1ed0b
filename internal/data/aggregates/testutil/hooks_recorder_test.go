package testutil

import (
	"testing"
	"time"
)

func TestHooksRecorderKeepsCallOrder(t *testing.T) {
	h := &HooksRecorder{}
	h.ObserveOperation("Tracking.Batch.AddAssembly", "conflict", time.Millisecond)
	h.IncConflict("Tracking.Batch.AddAssembly")
	h.ObserveOperation("Tracking.Batch.AddAssembly", "success", time.Millisecond)
	h.IncReweigh("Tracking.Batch")
	h.ObserveFanOut(4)
	h.IncPendingEffect("Tracking.Assembly.Create", "issue_barcode")
	h.IncRetry("aggregate.tx")

	if got := h.LastStatus("Tracking.Batch.AddAssembly"); got != "success" {
		t.Fatalf("LastStatus = %q", got)
	}
	if h.Count(KindConflict, "") != 1 || h.Count(KindRetry, "aggregate.tx") != 1 || h.Count(KindReweigh, "other") != 0 {
		t.Fatalf("unexpected counts: %+v", h.signals)
	}
	if fan := h.Signals(KindFanOut); len(fan) != 1 || fan[0].N != 4 {
		t.Fatalf("fan-out signals: %+v", fan)
	}
	if steps := h.PendingSteps(); len(steps) != 1 || steps[0] != "issue_barcode" {
		t.Fatalf("pending steps: %v", steps)
	}
	if h.LastStatus("missing") != "" {
		t.Fatalf("unknown operation should have no status")
	}
}
