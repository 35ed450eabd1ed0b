// Package bus relays SSE messages between API instances so a client connected
// to any instance sees changes committed through the others.
package bus

import (
	"context"

	"github.com/yungbote/trackflow-backend/internal/realtime"
)

type Bus interface {
	// Publish sends the messages of one change as a single relay frame.
	Publish(ctx context.Context, msgs ...realtime.SSEMessage) error
	// Relay subscribes and calls deliver for every message received until ctx
	// is done. It returns once the subscription is confirmed.
	Relay(ctx context.Context, deliver func(realtime.SSEMessage)) error
	Close() error
}
