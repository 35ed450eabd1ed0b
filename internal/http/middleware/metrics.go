package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackflow-backend/internal/observability"
)

// Metrics records request count and latency per route. Streaming routes only count,
// their duration is the connection lifetime.
func Metrics(m *observability.Metrics, streaming ...string) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]bool, len(streaming))
	for _, s := range streaming {
		skip[s] = true
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		if skip[route] {
			c.Next()
			m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), 0)
			return
		}
		start := time.Now()
		done := m.TrackInflight()
		defer done()

		c.Next()
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
