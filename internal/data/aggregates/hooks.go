package aggregates

import (
	"time"

	"github.com/yungbote/trackflow-backend/internal/observability"
)

// Hooks receives aggregate signals: outcomes, conflicts, retries, pending
// effects, fan-out sizes and batch reweighs.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
	IncPendingEffect(name, step string)
	ObserveFanOut(children int)
	IncReweigh(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) IncPendingEffect(string, string)                {}
func (noopHooks) ObserveFanOut(int)                              {}
func (noopHooks) IncReweigh(string)                              {}

// metricHooks forwards to the process metrics. A nil *Metrics drops everything.
type metricHooks struct{ m *observability.Metrics }

// NewMetricHooks reports aggregate signals as process metrics.
func NewMetricHooks(m *observability.Metrics) Hooks {
	if m == nil {
		return noopHooks{}
	}
	return metricHooks{m: m}
}

func (h metricHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.m.ObserveAggregateOperation(name, status, dur)
}
func (h metricHooks) IncConflict(name string)            { h.m.IncAggregateConflict(name) }
func (h metricHooks) IncRetry(name string)               { h.m.IncAggregateRetry(name) }
func (h metricHooks) IncPendingEffect(name, step string) { h.m.IncPendingEffect(name, step) }
func (h metricHooks) ObserveFanOut(children int)         { h.m.ObserveFanOutChildren(children) }
func (h metricHooks) IncReweigh(name string)             { h.m.IncBatchReweigh(name) }
