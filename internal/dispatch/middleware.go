// Internal secret middleware guards the endpoints only other backend services may call.

package dispatch

import (
	"Hearth/pkg/log"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Header carrying the secret shared between Hearth and the API instances.
const InternalSecretHeader = "x-internal-api-secret"

// InternalSecretMiddleware lets a request through only when it carries the shared secret.
// Rejected requests get an empty 204, the same answer an accepted dispatch gets.
func InternalSecretMiddleware(secret string, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		given := gctx.GetHeader(InternalSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			logger.WithCtx(gctx).Warn().
				Str("path", gctx.FullPath()).
				Bool("header_present", given != "").
				Msg("Rejected internal request with a wrong secret")
			gctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		gctx.Next()
	}
}
