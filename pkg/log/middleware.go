// This middleware is used to integrate zerolog extension created in logger.go into gin server.

package log

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Query parameters which are never written to the logs.
var redactedParams = []string{"token", "access_token"}

// Primary use-case of this middleware is to force gin to use zerolog functionality instead of the default one.
// SSE requests are logged once the stream ends, so Latency there is the lifetime of the connection.
func LoggerGinExtension(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now() // Start timer
		path := c.Request.URL.Path
		raw := redactQuery(c.Request.URL.RawQuery)

		// Process request
		c.Next()

		// Fill the params
		param := gin.LogFormatterParams{}

		param.TimeStamp = time.Now() // Stop timer
		param.Latency = param.TimeStamp.Sub(start)
		if param.Latency > time.Minute {
			param.Latency = param.Latency.Truncate(time.Second)
		}

		param.ClientIP = c.ClientIP()
		param.Method = c.Request.Method
		param.StatusCode = c.Writer.Status()
		param.ErrorMessage = c.Errors.ByType(gin.ErrorTypePrivate).String()
		param.BodySize = c.Writer.Size()
		if raw != "" {
			path = path + "?" + raw
		}
		param.Path = path

		var logEvent *zerolog.Event
		if param.StatusCode >= 500 {
			logEvent = logger.WithCtx(c).Error()
		} else if param.StatusCode >= 400 {
			logEvent = logger.WithCtx(c).Warn()
		} else {
			logEvent = logger.WithCtx(c).Info()
		}

		logEvent.
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status", param.StatusCode).
			Dur("latency", param.Latency).
			Int("body_size", param.BodySize).
			Msg(param.ErrorMessage)
	}
}

// Replaces the value of sensitive query parameters, access tokens travel in the query for EventSource.
func redactQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	changed := false
	for _, key := range redactedParams {
		if _, ok := values[key]; ok {
			values.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return values.Encode()
}
