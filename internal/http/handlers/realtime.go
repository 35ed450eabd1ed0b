package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/realtime"
)

var errNoStream = errors.New("no active SSE connection for this session")

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub

	mu      sync.RWMutex
	clients map[uuid.UUID]*realtime.SSEClient // by session id
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /sse/stream?project_id=
// Every stream is on the tracking channel; project_id adds that project's channel.
// A second stream for the same session replaces the first.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil || rd.SessionID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing session"))
		return
	}
	projectID, ok := uuidQuery(c, "project_id")
	if !ok {
		return
	}

	client := h.hub.NewSSEClient(rd.UserID)
	h.mu.Lock()
	if existing, ok := h.clients[rd.SessionID]; ok {
		h.hub.CloseClient(existing)
	}
	h.clients[rd.SessionID] = client
	h.mu.Unlock()

	h.hub.AddChannel(client, realtime.TrackingChannel)
	if projectID != nil {
		h.hub.AddChannel(client, realtime.ProjectChannel(*projectID))
	}
	h.log.Info("SSE stream open", "user_id", rd.UserID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	if h.clients[rd.SessionID] == client {
		delete(h.clients, rd.SessionID)
	}
	h.mu.Unlock()
	h.hub.CloseClient(client)
}

// POST /sse/subscribe {"channel": "project:<id>"}
func (h *RealtimeHandler) SSESubscribe(c *gin.Context) {
	client, channel, ok := h.channelRequest(c)
	if !ok {
		return
	}
	h.hub.AddChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "subscribed", "channel": channel})
}

func (h *RealtimeHandler) SSEUnsubscribe(c *gin.Context) {
	client, channel, ok := h.channelRequest(c)
	if !ok {
		return
	}
	h.hub.RemoveChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "unsubscribed", "channel": channel})
}

func (h *RealtimeHandler) channelRequest(c *gin.Context) (*realtime.SSEClient, string, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.SessionID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing session"))
		return nil, "", false
	}
	var req struct {
		Channel string `json:"channel"`
	}
	if !bindJSON(c, &req) {
		return nil, "", false
	}
	channel := strings.TrimSpace(req.Channel)
	if !validChannel(channel) {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("invalid channel"))
		return nil, "", false
	}
	h.mu.RLock()
	client, exists := h.clients[rd.SessionID]
	h.mu.RUnlock()
	if !exists {
		response.RespondError(c, http.StatusConflict, "conflict", errNoStream)
		return nil, "", false
	}
	return client, channel, true
}

func validChannel(ch string) bool {
	if ch == realtime.TrackingChannel {
		return true
	}
	raw, ok := strings.CutPrefix(ch, "project:")
	if !ok {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}
