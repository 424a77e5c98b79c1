// Server Side Events (SSE) middleware owning the lifecycle of one connection in the registry.

package sse

import (
	"Hearth/internal/entity"
	"Hearth/internal/errors"
	"Hearth/pkg/lifecycle"
	"Hearth/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
)

// Key under which the stream of the connection is stored in the request context.
const SinkKey = "SSE"

// SSEConnManagerMiddleware flushes the stream headers, registers the connection and removes it
// exactly once, whichever of finish, client abort or stream close happens first.
// Expects the Identity set by the access token middleware and the SSE headers already set.
func SSEConnManagerMiddleware(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		identity, ok := gctx.Value(entity.IdentityKey).(entity.Identity)
		if !ok {
			// Type assertion error
			logger.WithCtx(gctx).Error().Msg("Type assertion error in SSEConnManagerMiddleware")
			errors.Abort(gctx, errors.InternalServerError(""))
			return
		}

		// Outlives the request context so removal still logs under its ReqID
		cctx := gctx.Copy()
		connID := xid.New().String()

		gctx.Writer.WriteHeaderNow()
		gctx.Writer.Flush()
		sink := NewResponseSink(gctx.Writer)

		if err := service.AddClient(cctx, identity.UserID, identity.Role, sink, connID); err != nil {
			logger.WithCtx(gctx).Error().Err(err).Str("client_id", connID).Msg("Couldn't register SSE connection, closing it")
			service.RemoveClient(cctx, connID)
			sink.End()
			gctx.Abort()
			return
		}

		scope := lifecycle.New(func(reason lifecycle.Reason) {
			removed := service.RemoveClient(cctx, connID)
			logger.WithCtx(cctx).Info().
				Str("client_id", connID).
				Str("reason", string(reason)).
				Bool("removed", removed).
				Msg("Closing SSE connection")
		})
		// Registered after AddClient, a signal which already fired concludes right away.
		scope.OnContextDone(gctx.Request.Context(), lifecycle.Aborted)
		scope.OnClose(sink.Done(), lifecycle.Closed)

		gctx.Set(SinkKey, sink)
		gctx.Next()

		scope.Conclude(lifecycle.Finished)
		// Nothing may write once the handler returned.
		sink.End()
	}
}
