package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventBatchUpdated         SSEEvent = "BatchUpdated"
	SSEEventBatchAssemblyAdded   SSEEvent = "BatchAssemblyAdded"
	SSEEventBatchAssemblyRemoved SSEEvent = "BatchAssemblyRemoved"
	SSEEventAssemblyCreated      SSEEvent = "AssemblyCreated"
	SSEEventAssemblyUpdated      SSEEvent = "AssemblyUpdated"
	SSEEventAssemblyDeleted      SSEEvent = "AssemblyDeleted"
)

// TrackingChannel receives every tracking event regardless of project.
const TrackingChannel = "tracking"

func ProjectChannel(projectID uuid.UUID) string {
	return "project:" + projectID.String()
}

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}
