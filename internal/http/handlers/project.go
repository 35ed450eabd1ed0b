package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type ProjectHandler struct {
	projects services.ProjectService
}

func NewProjectHandler(projects services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// GET /projects?status=&q=&limit=&offset=
func (h *ProjectHandler) List(c *gin.Context) {
	limit, offset := page(c)
	items, total, err := h.projects.List(dbc(c), repos.ProjectFilter{
		Status: c.Query("status"),
		Search: c.Query("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, listPayload(items, total, limit, offset))
}

func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.Get(dbc(c), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.ProjectInput
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.projects.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"project": p})
}

func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.ProjectPatch
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.projects.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
