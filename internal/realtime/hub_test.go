package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t), nil)
	channel := ProjectChannel(uuid.New())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventBatchAssemblyAdded, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventBatchUpdated, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventBatchAssemblyAdded {
		t.Fatalf("first event: got=%s", got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventBatchUpdated {
		t.Fatalf("second event: got=%s", got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("outbound should be closed after disconnect")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("client count after close: %d", n)
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventAssemblyUpdated})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventAssemblyUpdated {
		t.Fatalf("reconnect event: got=%s", got.Event)
	}
}

func TestSSEHubChannelIsolation(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t), nil)
	a := hub.NewSSEClient(uuid.New())
	b := hub.NewSSEClient(uuid.New())
	hub.AddChannel(a, TrackingChannel)
	hub.AddChannel(b, ProjectChannel(uuid.New()))

	hub.Broadcast(SSEMessage{Channel: TrackingChannel, Event: SSEEventAssemblyCreated})
	recvMessage(t, a.Outbound, time.Second)
	select {
	case msg := <-b.Outbound:
		t.Fatalf("unexpected delivery to other channel: %+v", msg)
	default:
	}

	hub.RemoveChannel(a, TrackingChannel)
	hub.Broadcast(SSEMessage{Channel: TrackingChannel, Event: SSEEventAssemblyCreated})
	select {
	case msg := <-a.Outbound:
		t.Fatalf("delivered after unsubscribe: %+v", msg)
	default:
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t), nil)
	c := hub.NewSSEClient(uuid.New())
	hub.AddChannel(c, TrackingChannel)
	for i := 0; i < cap(c.Outbound)+5; i++ {
		hub.Broadcast(SSEMessage{Channel: TrackingChannel, Event: SSEEventBatchUpdated})
	}
	if len(c.Outbound) != cap(c.Outbound) {
		t.Fatalf("buffer: len=%d cap=%d", len(c.Outbound), cap(c.Outbound))
	}
}

func TestServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t), nil)
	c := hub.NewSSEClient(uuid.New())
	hub.AddChannel(c, TrackingChannel)
	hub.Broadcast(SSEMessage{Channel: TrackingChannel, Event: SSEEventBatchUpdated, Data: map[string]any{"batch_number": "B-1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/sse/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, req, c)

	body := rec.Body.String()
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("content type: %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(body, "event: connected") || !strings.Contains(body, "event: BatchUpdated") || !strings.Contains(body, `"batch_number":"B-1"`) {
		t.Fatalf("stream body:\n%s", body)
	}
}
