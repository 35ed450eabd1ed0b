package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type BatchHandler struct {
	batches services.BatchService
}

func NewBatchHandler(batches services.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

func (h *BatchHandler) List(c *gin.Context) {
	projectID, ok := uuidQuery(c, "project_id")
	if !ok {
		return
	}
	limit, offset := page(c)
	items, total, err := h.batches.List(dbc(c), repos.BatchFilter{
		ProjectID: projectID,
		Status:    c.Query("status"),
		Search:    c.Query("q"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, listPayload(items, total, limit, offset))
}

func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	b, err := h.batches.Get(dbc(c), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batch": b})
}

// POST /mobile/batches/validate {"barcode": "BAT-..."}
func (h *BatchHandler) ValidateBarcode(c *gin.Context) {
	var req struct {
		Barcode string `json:"barcode"`
	}
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.batches.ValidateBarcode(dbc(c), req.Barcode)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"valid": true, "batch": b})
}

func (h *BatchHandler) Create(c *gin.Context) {
	var req services.CreateBatchInput
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.batches.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOutcome(c, http.StatusCreated, gin.H{"batch": res.Batch, "barcode": res.Barcode}, res.Outcome)
}

func (h *BatchHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.BatchPatch
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.batches.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batch": b})
}

func (h *BatchHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.batches.Delete(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PATCH /batches/:id/status {"status": "In Transit", "version": 3}
// version is optional; when sent, a stale value is a conflict.
func (h *BatchHandler) ChangeStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status  string `json:"status"`
		Version *int   `json:"version"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.batches.ChangeStatus(c.Request.Context(), id, req.Status, req.Version)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOutcome(c, http.StatusOK, gin.H{
		"batch":               res.Batch,
		"previous_status":     res.PreviousStatus,
		"assemblies_complete": res.AssembliesComplete,
	}, res.Outcome)
}

func (h *BatchHandler) ListAssemblies(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.batches.ListAssemblies(dbc(c), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, members)
}

// POST /batches/:id/assemblies {"assembly_id": "..."} or {"barcode": "ASM-..."}
// 201 when linked, 200 with already_added when it was a member, 207 when linked but
// a follow-up effect failed.
func (h *BatchHandler) AddAssembly(c *gin.Context) {
	batchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		AssemblyID string `json:"assembly_id"`
		Barcode    string `json:"barcode"`
	}
	if !bindJSON(c, &req) {
		return
	}
	var assemblyID uuid.UUID
	if strings.TrimSpace(req.AssemblyID) != "" {
		id, err := parseUUID(req.AssemblyID)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "validation", errors.New("invalid assembly_id"))
			return
		}
		assemblyID = id
	} else if strings.TrimSpace(req.Barcode) == "" {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("assembly_id or barcode is required"))
		return
	}

	res, err := h.batches.AddAssembly(c.Request.Context(), batchID, assemblyID, req.Barcode)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	payload := gin.H{
		"batch":        res.Batch,
		"assembly":     res.Assembly,
		"total_weight": res.TotalWeight,
	}
	if res.AlreadyAdded {
		payload["already_added"] = true
		response.RespondOK(c, payload)
		return
	}
	payload["added"] = true
	payload["previous_status"] = res.PreviousStatus
	response.RespondOutcome(c, http.StatusCreated, payload, res.Outcome)
}

func (h *BatchHandler) RemoveAssembly(c *gin.Context) {
	batchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	assemblyID, ok := uuidParam(c, "assemblyId")
	if !ok {
		return
	}
	res, err := h.batches.RemoveAssembly(c.Request.Context(), batchID, assemblyID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOutcome(c, http.StatusOK, gin.H{
		"removed":      true,
		"batch":        res.Batch,
		"assembly_id":  res.AssemblyID,
		"total_weight": res.TotalWeight,
	}, res.Outcome)
}
