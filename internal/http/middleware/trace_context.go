package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext stamps every request with a trace id and a request id and
// echoes both in the response. The active otelgin span wins over a client header.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := ctxutil.Trace{
			TraceID:   spanTraceID(c),
			RequestID: headerOr(c, headerRequestID, uuid.NewString),
		}
		if t.TraceID == "" {
			t.TraceID = headerOr(c, headerTraceID, func() string {
				return strings.ReplaceAll(uuid.NewString(), "-", "")
			})
		}
		c.Request = c.Request.WithContext(ctxutil.WithTrace(c.Request.Context(), t))
		c.Header(headerTraceID, t.TraceID)
		c.Header(headerRequestID, t.RequestID)
		c.Next()
	}
}

func spanTraceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func headerOr(c *gin.Context, name string, gen func() string) string {
	if v := strings.TrimSpace(c.GetHeader(name)); v != "" {
		return v
	}
	return gen()
}
