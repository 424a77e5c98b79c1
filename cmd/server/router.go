// List of all REST API endpoints being used by Hearth can be found here.

package main

import (
	"Hearth/internal/auth"
	"Hearth/internal/dispatch"
	"Hearth/internal/errors"
	"Hearth/internal/sse"
	"Hearth/pkg/db"
	"Hearth/pkg/log"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Everything the routes need, built once in main.
type routerDeps struct {
	dbConnWrp         *db.RedisDB
	sseService        sse.Service
	dispatchService   dispatch.Service
	authService       auth.Service
	internalAPISecret string
	gatherer          prometheus.Gatherer
	logger            log.Logger
}

func Router(router *gin.Engine, deps routerDeps) {
	// This is the route to default path
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to Hearth!")
	})
	router.GET("/healthz", healthz(deps.dbConnWrp, deps.logger))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{})))
	router.NoRoute(func(gctx *gin.Context) {
		errors.Abort(gctx, errors.NotFound(""))
	})

	internalOnly := dispatch.InternalSecretMiddleware(deps.internalAPISecret, deps.logger)
	authWithAcc := auth.AccessTokenMiddleware(deps.authService, deps.logger)

	// Register internal package sse handler
	sse.APIHandlers(router, deps.sseService, authWithAcc, internalOnly, deps.logger)
	// Register internal package dispatch handler
	dispatch.APIHandlers(router, deps.dispatchService, internalOnly, deps.logger)
}

// healthz reports 503 while the redis-server can't be reached.
func healthz(dbConnWrp *db.RedisDB, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		ctx, cancel := context.WithTimeout(gctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := dbConnWrp.CheckDbConnection(ctx, logger); err != nil {
			logger.WithCtx(gctx).Error().Err(err).Msg("Health check failed")
			gctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		gctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
