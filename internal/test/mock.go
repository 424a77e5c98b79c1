// Mock methods required in Hearth tests are all here.

package test

import (
	"Hearth/internal/entity"
	"Hearth/pkg/globalcontext"
	"Hearth/pkg/log"
	"Hearth/pkg/middlewares"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
)

// Singleton to make sure gin is switched to test mode only once.
var once sync.Once

// MockRouter returns a fresh gin engine with the global middlewares of Hearth.
func MockRouter(logger log.Logger) *gin.Engine {
	once.Do(func() {
		gin.SetMode(gin.TestMode)
	})
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(globalcontext.UniqueIDMiddleware(logger))
	router.Use(middlewares.CORSMiddleware(nil)) // CORS middleware which allows request from all origin
	return router
}

// Headers read by MockAuthMiddleware in place of an access token.
const (
	MockUserHeader = "X-Mock-User"
	MockRoleHeader = "X-Mock-Role"
)

// MockAuthMiddleware trusts the identity given in the mock headers, 401 without them.
func MockAuthMiddleware(logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		userID, err := strconv.ParseInt(gctx.GetHeader(MockUserHeader), 10, 64)
		if err != nil || userID <= 0 {
			gctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		role := entity.Role(gctx.GetHeader(MockRoleHeader))
		if !role.Valid() {
			gctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		logger.WithCtx(gctx).Debug().Int64("user_id", userID).Msg("Mock identity accepted")
		// This pair will be used further down in the handler chain
		gctx.Set(entity.IdentityKey, entity.Identity{UserID: userID, Role: role})
		gctx.Next()
	}
}

// MockIdentityHeaders builds the headers MockAuthMiddleware accepts.
func MockIdentityHeaders(userID int64, role entity.Role) map[string]string {
	return map[string]string{
		MockUserHeader: strconv.FormatInt(userID, 10),
		MockRoleHeader: string(role),
	}
}
