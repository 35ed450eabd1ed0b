package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/events"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const effectTimeout = 5 * time.Second

// BackfillScheduler queues barcode issue for assemblies whose inline issue failed.
type BackfillScheduler interface {
	ScheduleBarcodeBackfill(ctx context.Context, assemblyIDs []uuid.UUID) error
}

// effects runs the post-commit side of a write. Failures land in the outcome, never in
// the returned error: the write is already durable.
type effects struct {
	log       *logger.Logger
	publisher events.Publisher
	scheduler BackfillScheduler
}

func (e effects) publish(ctx context.Context, out *domainagg.Outcome, evs ...events.Event) {
	if e.publisher == nil {
		return
	}
	// a client that hangs up after the commit should not cost the broadcast
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectTimeout)
	defer cancel()
	for _, ev := range evs {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.log.Warn("event publish failed", "type", ev.Type, "entity_id", ev.EntityID, "error", err)
			out.AddPending(domainagg.StepPublishEvent, ev.EntityID.String(), err)
		}
	}
}

// scheduleBackfill hands pending barcode issues to the scheduler. Without a scheduler
// the pending entries stay in the outcome for the admin backfill endpoint.
func (e effects) scheduleBackfill(ctx context.Context, out *domainagg.Outcome, extra ...uuid.UUID) {
	ids := append([]uuid.UUID(nil), extra...)
	for _, p := range out.Pending {
		if p.Step != domainagg.StepIssueBarcode {
			continue
		}
		if id, err := uuid.Parse(p.TargetID); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || e.scheduler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectTimeout)
	defer cancel()
	if err := e.scheduler.ScheduleBarcodeBackfill(ctx, ids); err != nil {
		e.log.Warn("barcode backfill scheduling failed", "assemblies", len(ids), "error", err)
		out.AddPending(domainagg.StepBackfill, "", err)
	}
}
