package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen ctxutil.Trace
	var ok bool
	r.GET("/x", func(c *gin.Context) {
		seen, ok = ctxutil.TraceFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set(headerTraceID, "trace-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if !ok || seen.RequestID != "req-1" || seen.TraceID != "trace-1" {
		t.Fatalf("trace data = %+v", seen)
	}
	if rec.Header().Get(headerRequestID) != "req-1" {
		t.Fatalf("request id not echoed")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get(headerTraceID) == "" || rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("ids not generated")
	}
}
