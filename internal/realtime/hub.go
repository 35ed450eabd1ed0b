package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const (
	outboundBuffer = 32
	heartbeatEvery = 15 * time.Second
)

// SSEClient is one open event stream. Outbound is closed by CloseClient.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Outbound chan SSEMessage

	log      *logger.Logger
	channels map[string]struct{} // guarded by the hub lock
	done     chan struct{}
	closed   sync.Once
}

// SSEHub routes messages to the clients subscribed to their channel. Delivery
// is best effort: a client that is not draining its buffer misses messages.
type SSEHub struct {
	log     *logger.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]*SSEClient
	subs    map[string]map[uuid.UUID]*SSEClient
}

func NewSSEHub(log *logger.Logger, metrics *observability.Metrics) *SSEHub {
	if log == nil {
		log = logger.Nop()
	}
	return &SSEHub{
		log:     log.With("component", "sse_hub"),
		metrics: metrics,
		clients: map[uuid.UUID]*SSEClient{},
		subs:    map[string]map[uuid.UUID]*SSEClient{},
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	c := &SSEClient{
		ID:       uuid.New(),
		UserID:   userID,
		Outbound: make(chan SSEMessage, outboundBuffer),
		channels: map[string]struct{}{},
		done:     make(chan struct{}),
	}
	c.log = hub.log.With("client_id", c.ID)
	hub.mu.Lock()
	hub.clients[c.ID] = c
	n := len(hub.clients)
	hub.mu.Unlock()
	hub.metrics.SetSSEClients(n)
	return c
}

func (hub *SSEHub) AddChannel(c *SSEClient, channel string) {
	if channel = strings.TrimSpace(channel); c == nil || channel == "" {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if _, live := hub.clients[c.ID]; !live {
		return
	}
	set := hub.subs[channel]
	if set == nil {
		set = map[uuid.UUID]*SSEClient{}
		hub.subs[channel] = set
	}
	set[c.ID] = c
	c.channels[channel] = struct{}{}
}

func (hub *SSEHub) RemoveChannel(c *SSEClient, channel string) {
	if channel = strings.TrimSpace(channel); c == nil || channel == "" {
		return
	}
	hub.mu.Lock()
	hub.dropLocked(c, channel)
	hub.mu.Unlock()
}

func (hub *SSEHub) dropLocked(c *SSEClient, channel string) {
	delete(c.channels, channel)
	if set := hub.subs[channel]; set != nil {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(hub.subs, channel)
		}
	}
}

func (hub *SSEHub) Broadcast(msg SSEMessage) {
	if msg.Channel == "" {
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, c := range hub.subs[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			c.log.Warn("sse buffer full, message dropped", "event", msg.Event, "channel", msg.Channel)
		}
	}
}

func (hub *SSEHub) ClientCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// CloseClient unsubscribes c everywhere and closes its outbound channel. It
// may be called more than once.
func (hub *SSEHub) CloseClient(c *SSEClient) {
	if c == nil {
		return
	}
	c.closed.Do(func() {
		close(c.done)
		hub.mu.Lock()
		for ch := range c.channels {
			hub.dropLocked(c, ch)
		}
		delete(hub.clients, c.ID)
		n := len(hub.clients)
		// Broadcast holds the read lock while sending, so closing here cannot race a send.
		close(c.Outbound)
		hub.mu.Unlock()
		hub.metrics.SetSSEClients(n)
	})
}

// ServeHTTP streams c's messages as server-sent events until the request ends
// or the client is closed. A comment line is sent every heartbeatEvery to keep
// proxies from timing the stream out.
func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, c *SSEClient) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	send := func(event string, payload []byte) {
		writeFrame(w, event, payload)
		flusher.Flush()
	}
	send("connected", []byte(fmt.Sprintf(`{"client_id":%q}`, c.ID.String())))

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-c.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				c.log.Warn("sse message not encodable", "event", msg.Event, "error", err)
				continue
			}
			send(string(msg.Event), raw)
		}
	}
}

func writeFrame(w io.Writer, event string, data []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
