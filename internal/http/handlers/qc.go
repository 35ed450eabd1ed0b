package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type QCHandler struct {
	qc services.QCService
}

func NewQCHandler(qc services.QCService) *QCHandler {
	return &QCHandler{qc: qc}
}

func (h *QCHandler) ListImages(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	images, err := h.qc.ListImages(dbc(c), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": images})
}

// POST /assemblies/:id/qc-images (multipart: file, qc_status, notes)
func (h *QCHandler) UploadImage(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	file, done, ok := formFile(c)
	if !ok {
		return
	}
	defer done()
	img, err := h.qc.UploadImage(c.Request.Context(), id, services.QCImageInput{
		File:     file,
		QCStatus: c.PostForm("qc_status"),
		Notes:    c.PostForm("notes"),
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"image": img})
}

func (h *QCHandler) DeleteImage(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.qc.DeleteImage(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
