package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// RequestLogger writes one line per request. Handheld requests also carry the
// card id so a scan can be traced back to the badge that made it.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("middleware", "RequestLogger")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		ctx := c.Request.Context()
		kv = append(kv, ctxutil.TraceFields(ctx)...)
		if rd := ctxutil.GetRequestData(ctx); rd != nil && rd.UserID != uuid.Nil {
			kv = append(kv, "user_id", rd.UserID, "role", rd.Role)
			if rd.CardID != "" {
				kv = append(kv, "card_id", rd.CardID)
			}
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			kv = append(kv, "error", errs.String())
		}

		logAt(log, status)("request", kv...)
	}
}

func logAt(log *logger.Logger, status int) func(string, ...any) {
	switch {
	case status >= 500:
		return log.Error
	case status >= 400:
		return log.Warn
	}
	return log.Info
}
