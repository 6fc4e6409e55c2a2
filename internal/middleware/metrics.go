package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestRecorder receives request and stream timings.
type RequestRecorder interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
	ObserveStream(path string, duration time.Duration)
}

// Metrics times every request except the listed paths. Server-sent
// event responses are recorded as streams.
func Metrics(recorder RequestRecorder, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if recorder == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, ok := skipped[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			recorder.ObserveStream(path, duration)
			return
		}
		recorder.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), duration)
	}
}
