package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/trackflow-backend/internal/data/aggregates"
)

// Signal kinds recorded by HooksRecorder.
const (
	KindOperation = "operation"
	KindConflict  = "conflict"
	KindRetry     = "retry"
	KindPending   = "pending"
	KindFanOut    = "fan_out"
	KindReweigh   = "reweigh"
)

// Signal is one hook call. Detail holds the status of an operation or the step
// of a pending effect; N holds the child count of a fan-out.
type Signal struct {
	Kind     string
	Name     string
	Detail   string
	N        int
	Duration time.Duration
}

// HooksRecorder keeps aggregate hook calls in call order.
type HooksRecorder struct {
	mu      sync.Mutex
	signals []Signal
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) add(s Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, s)
}

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.add(Signal{Kind: KindOperation, Name: name, Detail: status, Duration: dur})
}

func (h *HooksRecorder) IncConflict(name string) { h.add(Signal{Kind: KindConflict, Name: name}) }
func (h *HooksRecorder) IncRetry(name string)    { h.add(Signal{Kind: KindRetry, Name: name}) }
func (h *HooksRecorder) IncReweigh(name string)  { h.add(Signal{Kind: KindReweigh, Name: name}) }

func (h *HooksRecorder) IncPendingEffect(name, step string) {
	h.add(Signal{Kind: KindPending, Name: name, Detail: step})
}

func (h *HooksRecorder) ObserveFanOut(children int) {
	h.add(Signal{Kind: KindFanOut, N: children})
}

// Signals returns the recorded signals of one kind.
func (h *HooksRecorder) Signals(kind string) []Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Signal
	for _, s := range h.signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of signals of kind for name; an empty name matches all.
func (h *HooksRecorder) Count(kind, name string) int {
	n := 0
	for _, s := range h.Signals(kind) {
		if name == "" || s.Name == name {
			n++
		}
	}
	return n
}

// LastStatus returns the status of the most recent operation called name.
func (h *HooksRecorder) LastStatus(name string) string {
	ops := h.Signals(KindOperation)
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Name == name {
			return ops[i].Detail
		}
	}
	return ""
}

// PendingSteps returns the recorded pending-effect steps in order.
func (h *HooksRecorder) PendingSteps() []string {
	var out []string
	for _, s := range h.Signals(KindPending) {
		out = append(out, s.Detail)
	}
	return out
}
