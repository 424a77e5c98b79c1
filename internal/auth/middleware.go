// Auth middleware is used to validate the access token sent with a stream request.
// EventSource can't set headers, so the token travels in the query string, the cookie is a fallback.

package auth

import (
	"Hearth/internal/entity"
	"Hearth/internal/errors"
	"Hearth/pkg/log"

	"github.com/gin-gonic/gin"
)

// Query parameter and cookie name carrying the access token.
const (
	TokenQueryParam = "token"
	TokenCookie     = "access_token"
)

// This middleware verifies the access token and stores the entity.Identity it carries in the request context.
// Blocks the request with 401 if the token is missing or invalid.
func AccessTokenMiddleware(authService Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		identity, err := authService.ParseAccessToken(gctx, fetchToken(gctx))
		if err != nil {
			logger.WithCtx(gctx).Info().Err(err).Msg("Unauthenticated stream request")
			errors.Abort(gctx, errors.Unauthorized(""))
			return
		}
		// This pair will be used further down in the handler chain
		gctx.Set(entity.IdentityKey, identity)
		gctx.Next()
	}
}

// Helper to fetch token string from the query or the cookie.
func fetchToken(gctx *gin.Context) string {
	if token := gctx.Query(TokenQueryParam); token != "" {
		return token
	}
	token, err := gctx.Cookie(TokenCookie)
	if err != nil {
		return ""
	}
	return token
}
