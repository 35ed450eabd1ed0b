package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	BatchUpdated         Type = "BatchUpdated"
	BatchAssemblyAdded   Type = "BatchAssemblyAdded"
	BatchAssemblyRemoved Type = "BatchAssemblyRemoved"
	AssemblyCreated      Type = "AssemblyCreated"
	AssemblyUpdated      Type = "AssemblyUpdated"
	AssemblyDeleted      Type = "AssemblyDeleted"
)

// Event is a committed change to a tracking entity.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	ProjectID  uuid.UUID `json:"project_id"`
	EntityID   uuid.UUID `json:"entity_id"`
	Data       any       `json:"data,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(t Type, projectID, entityID uuid.UUID, data any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		ProjectID:  projectID,
		EntityID:   entityID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events after the write that produced them has committed.
// A publish error never undoes the write; callers report it as a pending effect.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
