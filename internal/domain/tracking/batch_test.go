package tracking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestTotalWeight(t *testing.T) {
	lines := []WeightLine{
		{AssemblyID: uuid.New(), Weight: decimal.NewFromInt(50), Quantity: 2},
		{AssemblyID: uuid.New(), Weight: decimal.NewFromInt(30), Quantity: 1},
	}
	if got := TotalWeight(lines); !got.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("total: want=130 got=%s", got)
	}
	if got := TotalWeight(lines[:1]); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total after removal: want=100 got=%s", got)
	}
	if got := TotalWeight(nil); !got.IsZero() {
		t.Fatalf("empty total: want=0 got=%s", got)
	}
}

func TestTotalWeightKeepsFractions(t *testing.T) {
	lines := []WeightLine{
		{Weight: decimal.RequireFromString("0.1"), Quantity: 3},
		{Weight: decimal.RequireFromString("0.2"), Quantity: 1},
	}
	if got := TotalWeight(lines); !got.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("total: want=0.5 got=%s", got)
	}
}

func TestBatchTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{BatchStatusPending, BatchStatusInTransit, true},
		{BatchStatusPending, BatchStatusCancelled, true},
		{BatchStatusPending, BatchStatusDelivered, false},
		{BatchStatusInTransit, BatchStatusDelivered, true},
		{BatchStatusInTransit, BatchStatusPending, true},
		{BatchStatusDelivered, BatchStatusPending, false},
		{BatchStatusCancelled, BatchStatusPending, false},
	}
	for _, tc := range cases {
		if got := BatchTransitionAllowed(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: want=%v got=%v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestBatchLocked(t *testing.T) {
	for _, s := range []string{BatchStatusDelivered, BatchStatusCancelled} {
		if !(&LogisticsBatch{Status: s}).IsLocked() {
			t.Fatalf("%s should lock the batch", s)
		}
	}
	for _, s := range []string{BatchStatusPending, BatchStatusInTransit} {
		if (&LogisticsBatch{Status: s}).IsLocked() {
			t.Fatalf("%s should not lock the batch", s)
		}
	}
	if got := NormalizeBatchStatus("in transit"); got != BatchStatusInTransit {
		t.Fatalf("normalize: got=%q", got)
	}
}
