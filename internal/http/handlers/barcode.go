package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type BarcodeHandler struct {
	barcodes  services.BarcodeService
	scheduler services.BackfillScheduler
}

// NewBarcodeHandler takes an optional scheduler; without one backfills always run inline.
func NewBarcodeHandler(barcodes services.BarcodeService, scheduler services.BackfillScheduler) *BarcodeHandler {
	return &BarcodeHandler{barcodes: barcodes, scheduler: scheduler}
}

// GET /barcodes/:code
func (h *BarcodeHandler) Resolve(c *gin.Context) {
	res, err := h.barcodes.Resolve(dbc(c), c.Param("code"))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /assemblies/:id/barcode {"code": optional}
func (h *BarcodeHandler) BindAssembly(c *gin.Context) { h.bind(c, tracking.BarcodeKindAssembly) }

// POST /batches/:id/barcode {"code": optional}
func (h *BarcodeHandler) BindBatch(c *gin.Context) { h.bind(c, tracking.BarcodeKindBatch) }

func (h *BarcodeHandler) bind(c *gin.Context, kind tracking.BarcodeKind) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	bc, err := h.barcodes.Bind(c.Request.Context(), services.BindBarcodeInput{Code: req.Code, Kind: kind, TargetID: id})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"barcode": bc})
}

// POST /barcodes/backfill {"assembly_ids": [...], "limit": 500, "async": false}
func (h *BarcodeHandler) Backfill(c *gin.Context) {
	var req struct {
		AssemblyIDs []uuid.UUID `json:"assembly_ids"`
		Limit       int         `json:"limit"`
		Async       bool        `json:"async"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	if req.Async {
		if h.scheduler == nil || len(req.AssemblyIDs) == 0 {
			response.RespondError(c, http.StatusBadRequest, "validation", errors.New("async backfill needs assembly_ids and a configured worker"))
			return
		}
		if err := h.scheduler.ScheduleBarcodeBackfill(c.Request.Context(), req.AssemblyIDs); err != nil {
			response.RespondAppError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"scheduled": len(req.AssemblyIDs)})
		return
	}
	res, err := h.barcodes.Backfill(c.Request.Context(), req.AssemblyIDs, req.Limit)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOutcome(c, http.StatusOK, gin.H{"scanned": res.Scanned, "issued": res.Issued}, res.Outcome)
}
