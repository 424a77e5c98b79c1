// Exposes all of the REST APIs related to SSE in Hearth.

package sse

import (
	"Hearth/internal/entity"
	"Hearth/internal/errors"
	"Hearth/pkg/log"
	"Hearth/pkg/middlewares"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package sse onto the gin server.
// internalOnly guards the operator endpoints, it is the same check the dispatch API uses.
func APIHandlers(router *gin.Engine, service Service, authWithAcc gin.HandlerFunc, internalOnly gin.HandlerFunc, logger log.Logger) {
	sseGroup := router.Group("/api/sse")
	{
		sseGroup.GET("/stream", authWithAcc, middlewares.SSEMiddleware(), SSEConnManagerMiddleware(service, logger), streamHandler(logger))
		sseGroup.GET("/stats", internalOnly, stats(service))
	}
}

// streamHandler holds the response open until the stream ends or the client leaves.
// Frames are written by the registry, never by this goroutine.
func streamHandler(logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		sink, ok := gctx.Value(SinkKey).(entity.StreamSink)
		if !ok {
			logger.WithCtx(gctx).Error().Msg("Type assertion error in streamHandler")
			errors.Abort(gctx, errors.InternalServerError(""))
			return
		}
		select {
		case <-sink.Done():
		case <-gctx.Request.Context().Done():
		}
	}
}

type statsResponse struct {
	Clients  int      `json:"clients"`
	Channels []string `json:"channels"`
}

func stats(service Service) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, statsResponse{
			Clients:  service.Count(),
			Channels: service.Subscriber().Channels(),
		})
	}
}
