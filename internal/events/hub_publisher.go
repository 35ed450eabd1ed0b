package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/realtime"
	"github.com/yungbote/trackflow-backend/internal/realtime/bus"
)

// HubPublisher turns events into SSE messages on the project channel and the
// global tracking channel. With a bus, messages go through redis and every
// instance (this one included) broadcasts them from its forwarder.
type HubPublisher struct {
	hub     *realtime.SSEHub
	bus     bus.Bus
	log     *logger.Logger
	metrics *observability.Metrics
}

func NewHubPublisher(log *logger.Logger, hub *realtime.SSEHub, b bus.Bus, metrics *observability.Metrics) *HubPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &HubPublisher{hub: hub, bus: b, log: log.With("publisher", "sse"), metrics: metrics}
}

func (p *HubPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || (p.hub == nil && p.bus == nil) {
		return nil
	}
	msgs := Messages(ev)
	if p.bus != nil {
		if err := p.bus.Publish(ctx, msgs...); err != nil {
			p.metrics.IncEventPublished("sse", string(ev.Type), "error")
			return fmt.Errorf("sse bus publish %s: %w", ev.Type, err)
		}
	} else {
		for _, msg := range msgs {
			p.hub.Broadcast(msg)
		}
	}
	p.metrics.IncEventPublished("sse", string(ev.Type), "ok")
	return nil
}

// Messages renders one event as the SSE messages it fans out to.
func Messages(ev Event) []realtime.SSEMessage {
	payload := map[string]any{
		"id":          ev.ID,
		"entity_id":   ev.EntityID,
		"project_id":  ev.ProjectID,
		"occurred_at": ev.OccurredAt,
		"data":        ev.Data,
	}
	out := []realtime.SSEMessage{{Channel: realtime.TrackingChannel, Event: realtime.SSEEvent(ev.Type), Data: payload}}
	if ev.ProjectID != uuid.Nil {
		out = append(out, realtime.SSEMessage{Channel: realtime.ProjectChannel(ev.ProjectID), Event: realtime.SSEEvent(ev.Type), Data: payload})
	}
	return out
}
