package aggregates

import "strings"

// EffectStatus describes a secondary effect that follows a committed write.
type EffectStatus string

const (
	EffectApplied EffectStatus = "applied"
	EffectPending EffectStatus = "pending"
)

const (
	StepIssueBarcode = "issue_barcode"
	StepPublishEvent = "publish_event"
	StepBackfill     = "schedule_backfill"
)

// PendingEffect is a secondary effect that did not complete. The primary write it
// belongs to is committed; the effect is left for a retry or a backfill.
type PendingEffect struct {
	Step     string `json:"step"`
	TargetID string `json:"target_id,omitempty"`
	Error    string `json:"error"`
}

// Outcome accumulates pending effects for one operation.
type Outcome struct {
	Pending []PendingEffect `json:"pending,omitempty"`
}

func (o *Outcome) AddPending(step, targetID string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	o.Pending = append(o.Pending, PendingEffect{Step: step, TargetID: targetID, Error: msg})
}

// Partial reports whether any secondary effect is still pending.
func (o Outcome) Partial() bool { return len(o.Pending) > 0 }

func (o *Outcome) Merge(other Outcome) {
	o.Pending = append(o.Pending, other.Pending...)
}
