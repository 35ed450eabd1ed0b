package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/services"
)

const maxUploadBytes = 20 << 20

func dbc(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func uuidQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("invalid %s", name))
		return nil, false
	}
	return &id, true
}

func page(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// formFile opens the multipart "file" field. The caller closes the returned upload body.
func formFile(c *gin.Context) (services.FileUpload, func(), bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "validation", fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
			return services.FileUpload{}, nil, false
		}
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("missing file"))
		return services.FileUpload{}, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("open upload: %w", err))
		return services.FileUpload{}, nil, false
	}
	return services.FileUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }, true
}

func listPayload(items any, total int64, limit, offset int) gin.H {
	return gin.H{"items": items, "total": total, "limit": limit, "offset": offset}
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, errors.New("nil uuid")
	}
	return id, nil
}
