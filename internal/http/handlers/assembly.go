package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type AssemblyHandler struct {
	assemblies services.AssemblyService
}

func NewAssemblyHandler(assemblies services.AssemblyService) *AssemblyHandler {
	return &AssemblyHandler{assemblies: assemblies}
}

type createAssemblyRequest struct {
	Name                 string          `json:"name"`
	ProjectID            string          `json:"project_id"`
	Weight               decimal.Decimal `json:"weight"`
	Quantity             int             `json:"quantity"`
	Width                decimal.Decimal `json:"width"`
	Height               decimal.Decimal `json:"height"`
	Length               decimal.Decimal `json:"length"`
	PaintingSpec         string          `json:"painting_spec"`
	Status               string          `json:"status"`
	StartDate            *time.Time      `json:"start_date"`
	EndDate              *time.Time      `json:"end_date"`
	QualityControlStatus string          `json:"quality_control_status"`
	QualityControlNotes  string          `json:"quality_control_notes"`
	SkipBarcodes         bool            `json:"skip_barcodes"`
}

type assemblyPatchRequest struct {
	Name                 *string          `json:"name"`
	Weight               *decimal.Decimal `json:"weight"`
	Quantity             *int             `json:"quantity"`
	Width                *decimal.Decimal `json:"width"`
	Height               *decimal.Decimal `json:"height"`
	Length               *decimal.Decimal `json:"length"`
	PaintingSpec         *string          `json:"painting_spec"`
	Status               *string          `json:"status"`
	StartDate            *time.Time       `json:"start_date"`
	EndDate              *time.Time       `json:"end_date"`
	QualityControlStatus *string          `json:"quality_control_status"`
	QualityControlNotes  *string          `json:"quality_control_notes"`
}

func (r assemblyPatchRequest) patch() domainagg.AssemblyPatch {
	return domainagg.AssemblyPatch{
		Name:                 r.Name,
		Weight:               r.Weight,
		Quantity:             r.Quantity,
		Width:                r.Width,
		Height:               r.Height,
		Length:               r.Length,
		PaintingSpec:         r.PaintingSpec,
		Status:               r.Status,
		StartDate:            r.StartDate,
		EndDate:              r.EndDate,
		QualityControlStatus: r.QualityControlStatus,
		QualityControlNotes:  r.QualityControlNotes,
	}
}

// GET /assemblies?project_id=&parent_id=&status=&q=&top_level=true
func (h *AssemblyHandler) List(c *gin.Context) {
	projectID, ok := uuidQuery(c, "project_id")
	if !ok {
		return
	}
	parentID, ok := uuidQuery(c, "parent_id")
	if !ok {
		return
	}
	topLevel, _ := strconv.ParseBool(c.Query("top_level"))
	limit, offset := page(c)
	items, total, err := h.assemblies.List(dbc(c), repos.AssemblyFilter{
		ProjectID:    projectID,
		ParentID:     parentID,
		Status:       c.Query("status"),
		Search:       c.Query("q"),
		TopLevelOnly: topLevel,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, listPayload(items, total, limit, offset))
}

func (h *AssemblyHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.assemblies.Get(dbc(c), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assembly": detail})
}

// GET /mobile/assemblies/by-barcode/:code
func (h *AssemblyHandler) GetByBarcode(c *gin.Context) {
	detail, err := h.assemblies.GetByBarcode(dbc(c), c.Param("code"))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assembly": detail})
}

func (h *AssemblyHandler) Children(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	children, err := h.assemblies.Children(dbc(c), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"children": children})
}

// GET /assemblies/:id/history?limit=50
func (h *AssemblyHandler) History(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.assemblies.StatusHistory(dbc(c), id, limit)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": logs})
}

// POST /assemblies
// Returns the parent (or single) record; children are fetched separately.
func (h *AssemblyHandler) Create(c *gin.Context) {
	var req createAssemblyRequest
	if !bindJSON(c, &req) {
		return
	}
	projectID, err := parseUUID(req.ProjectID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("invalid project_id"))
		return
	}
	res, err := h.assemblies.Create(c.Request.Context(), domainagg.CreateAssemblyInput{
		Name:                 req.Name,
		ProjectID:            projectID,
		Weight:               req.Weight,
		Quantity:             req.Quantity,
		Width:                req.Width,
		Height:               req.Height,
		Length:               req.Length,
		PaintingSpec:         req.PaintingSpec,
		Status:               req.Status,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		QualityControlStatus: req.QualityControlStatus,
		QualityControlNotes:  req.QualityControlNotes,
		SkipBarcodes:         req.SkipBarcodes,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOutcome(c, http.StatusCreated, gin.H{
		"assembly":    res.Assembly,
		"barcode":     res.Barcode,
		"child_count": res.ChildCount,
	}, res.Outcome)
}

func (h *AssemblyHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req assemblyPatchRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assemblies.Update(c.Request.Context(), id, req.patch(), statusSource(c))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	respondUpdate(c, res)
}

// PATCH /assemblies/:id/status {"status": "..."}
func (h *AssemblyHandler) ChangeStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assemblies.ChangeStatus(c.Request.Context(), id, req.Status, statusSource(c))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	respondUpdate(c, res)
}

// PATCH /assemblies/:id/qc {"quality_control_status": "...", "quality_control_notes": "..."}
func (h *AssemblyHandler) UpdateQC(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string  `json:"quality_control_status"`
		Notes  *string `json:"quality_control_notes"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assemblies.UpdateQC(c.Request.Context(), id, req.Status, req.Notes)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	respondUpdate(c, res)
}

func (h *AssemblyHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	res, err := h.assemblies.Delete(c.Request.Context(), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOutcome(c, http.StatusOK, gin.H{
		"deleted_ids":       res.DeletedIDs,
		"batches_reweighed": res.BatchesReweighed,
	}, res.Outcome)
}

// POST /assemblies/:id/children/repair
func (h *AssemblyHandler) RepairChildren(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	res, err := h.assemblies.RepairChildren(c.Request.Context(), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOutcome(c, http.StatusOK, gin.H{
		"parent_id": res.ParentID,
		"created":   res.Created,
		"existing":  res.Existing,
	}, res.Outcome)
}

// POST /assemblies/:id/drawing (multipart, field "file")
func (h *AssemblyHandler) UploadDrawing(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	file, done, ok := formFile(c)
	if !ok {
		return
	}
	defer done()
	res, err := h.assemblies.UploadDrawing(c.Request.Context(), id, file)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	respondUpdate(c, res)
}

func respondUpdate(c *gin.Context, res domainagg.UpdateAssemblyResult) {
	response.RespondOutcome(c, http.StatusOK, gin.H{
		"assembly":          res.Assembly,
		"children_updated":  res.ChildrenUpdated,
		"batches_reweighed": res.BatchesReweighed,
	}, res.Outcome)
}

// statusSource tags writes coming through the handheld routes.
func statusSource(c *gin.Context) string {
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.CardID != "" {
		return tracking.StatusSourceMobile
	}
	return tracking.StatusSourceManual
}
