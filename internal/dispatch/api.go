// Exposes the internal REST API other backend services use to emit realtime events.

package dispatch

import (
	"Hearth/pkg/log"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body of POST /api/internal/events.
type dispatchRequest struct {
	Events []json.RawMessage `json:"events"`
}

// Registers all of the REST API handlers related to internal package dispatch onto the gin server.
func APIHandlers(router *gin.Engine, service Service, internalOnly gin.HandlerFunc, logger log.Logger) {
	internalGroup := router.Group("/api/internal", internalOnly)
	{
		internalGroup.POST("/events", dispatchEvents(service, logger))
	}
}

// dispatchEvents always answers 204, callers fire and forget.
func dispatchEvents(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var req dispatchRequest
		if binderr := gctx.ShouldBindJSON(&req); binderr != nil {
			logger.WithCtx(gctx).Warn().Err(binderr).Msg("Binding error occured with dispatch request.")
			gctx.Status(http.StatusNoContent)
			return
		}
		res := service.Dispatch(gctx, req.Events)
		logger.WithCtx(gctx).Info().
			Int("received", len(req.Events)).
			Int("published", res.Published).
			Int("invalid", res.Invalid).
			Int("failed", res.Failed).
			Msg("Dispatched events")
		gctx.Status(http.StatusNoContent)
	}
}
