// Context middleware is used in gin to populate request context with unique ID.
// This ID will be helpful in debugging issues happening for a request in handler chain.

package globalcontext

import (
	"Hearth/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carrying the request ID, both inbound (from the gateway) and outbound.
const RequestIDHeader = "X-Request-ID"

// This middleware will be used to populate every incoming request's context with an Unique UUID.
// An ID already assigned upstream is reused so a dispatch call can be traced across services.
// This middleware will be used as a global one.
func UniqueIDMiddleware(logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		rqID := gctx.GetHeader(RequestIDHeader)
		if _, prserr := uuid.Parse(rqID); prserr != nil {
			id, uuiderr := uuid.NewRandom()
			if uuiderr != nil {
				logger.Error().Err(uuiderr).Msg("Error during generating UUID for ReqID.")
				gctx.Next()
				return
			}
			rqID = id.String()
		}
		gctx.Set(log.RequestIDKey, rqID)
		gctx.Writer.Header().Set(RequestIDHeader, rqID)
		gctx.Next()
	}
}

// RequestID returns the ID stored by UniqueIDMiddleware, empty if none.
func RequestID(gctx *gin.Context) string {
	return gctx.GetString(log.RequestIDKey)
}
