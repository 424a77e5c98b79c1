package middlewares

import (
	"github.com/gin-gonic/gin"
)

// Header set every relay stream answers with, before its first frame is flushed.
var sseHeaders = map[string]string{
	"Content-Type":  "text/event-stream",
	"Cache-Control": "no-cache",
	"Connection":    "keep-alive",
	// nginx would otherwise hold frames until its buffer fills
	"X-Accel-Buffering": "no",
}

// SSEMiddleware marks the response as a long lived event stream of relay frames.
// Proxies must neither cache nor buffer it, heartbeats alone keep idle streams open.
func SSEMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for key, value := range sseHeaders {
			c.Writer.Header().Set(key, value)
		}
		c.Next()
	}
}
