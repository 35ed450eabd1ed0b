package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type NFCHandler struct {
	nfc services.NFCService
}

func NewNFCHandler(nfc services.NFCService) *NFCHandler {
	return &NFCHandler{nfc: nfc}
}

func (h *NFCHandler) List(c *gin.Context) {
	cards, err := h.nfc.List(dbc(c))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": cards})
}

// POST /nfc-cards {"card_id": "04:A2:19", "user_id": "...", "label": "..."}
func (h *NFCHandler) Bind(c *gin.Context) {
	var req services.BindCardInput
	if !bindJSON(c, &req) {
		return
	}
	card, err := h.nfc.Bind(c.Request.Context(), req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"card": card})
}

func (h *NFCHandler) Unbind(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.nfc.Unbind(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /mobile/nfc/validate {"card_id": "..."}
func (h *NFCHandler) Validate(c *gin.Context) {
	var req struct {
		CardID string `json:"card_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.nfc.Validate(c.Request.Context(), req.CardID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, v)
}
