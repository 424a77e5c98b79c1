// The main file of Hearth.

package main

import (
	"Hearth/internal/auth"
	"Hearth/internal/config"
	"Hearth/internal/dispatch"
	"Hearth/internal/metrics"
	"Hearth/internal/sse"
	"Hearth/pkg/cleanup"
	"Hearth/pkg/db"
	"Hearth/pkg/globalcontext"
	"Hearth/pkg/log"
	"Hearth/pkg/middlewares"
	"Hearth/pkg/validation"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Indicates the current version of Hearth, overridden by VERSION.
var Version = "1.0.0"

func main() {
	cfg, cfgerr := config.Load()
	if cfgerr != nil {
		log.New(Version, "PROD", "info").Fatal().Err(cfgerr).Msg("Couldn't load Hearth configuration.")
	}
	if cfg.Version == "dev" {
		cfg.Version = Version
	}
	logger := log.New(cfg.Version, cfg.Env, cfg.LogLevel)
	logger.Info().Msgf("Welcome to Hearth: v%s", cfg.Version)
	logger.Info().Msgf("Hearth Environment: %s", cfg.Env)

	// This is the preferred mode used by gin server in DEV environment.
	if cfg.Env == "DEV" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	dbConnWrp, dberr := db.NewDbConnection(db.Options{
		Addr:       cfg.RedisAddr(),
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		TLS:        cfg.RedisTLS,
		MaxRetries: cfg.RedisMaxRetries,
	})
	if dberr != nil {
		logger.Fatal().Err(dberr).Msg("Couldn't create the redis client.")
	}
	// Sending a PING request to DB for connection status check.
	if pingerr := dbConnWrp.CheckDbConnection(ctx, logger); pingerr != nil {
		logger.Fatal().Err(pingerr).Msg("Redis client couldn't PING the redis-server.")
	}

	// Adding custom validation tags into ext-package govalidator
	validation.RegisterCustomValidations()
	relayMetrics := metrics.Default()

	sseService := sse.NewService(sse.NewRepository(dbConnWrp), logger, relayMetrics)
	dispatchService := dispatch.NewService(dispatch.NewRepository(dbConnWrp), logger, relayMetrics)
	authService := auth.NewService(cfg.AccessTokenSecret, logger)

	// Initializing the gin server.
	server := gin.New()
	server.Use(globalcontext.UniqueIDMiddleware(logger))
	// Forcing gin to use custom Logger instead of the default one.
	server.Use(log.LoggerGinExtension(logger))
	server.Use(gin.Recovery())
	server.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))

	// Running Router() which routes all of the REST API groups and paths.
	Router(server, routerDeps{
		dbConnWrp:         dbConnWrp,
		sseService:        sseService,
		dispatchService:   dispatchService,
		authService:       authService,
		internalAPISecret: cfg.InternalAPISecret,
		gatherer:          prometheus.DefaultGatherer,
		logger:            logger,
	})

	// One listener handles every redis message in arrival order.
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go sseService.Subscriber().Listen(listenCtx)

	heartbeat := sse.NewHeartbeat(sseService, cfg.HeartbeatInterval, logger)
	heartbeat.Start()

	// No WriteTimeout, SSE responses stay open for as long as the client does.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ListenAndServe is a blocking operation, putting it a goroutine
	go func() {
		logger.Info().Msgf("Hearth service running at: %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Error in ListenAndServe()")
		}
	}()

	// Graceful shutdown of Hearth server triggered due to system interruptions.
	// Streams are ended before the server shuts down, Shutdown would otherwise wait on them.
	wait := cleanup.GracefulShutdown(ctx, logger, cfg.ShutdownTimeout,
		cleanup.Stage{"Heartbeat": heartbeat.Stop},
		cleanup.Stage{"SSE-clients": func(ctx context.Context) error {
			sseService.ClearSseClients(ctx)
			return nil
		}},
		cleanup.Stage{"Redis-subscriber": func(ctx context.Context) error {
			defer stopListening()
			return sseService.Subscriber().Disconnect(ctx)
		}},
		cleanup.Stage{"Gin": srv.Shutdown},
		cleanup.Stage{"Redis-server": dbConnWrp.CloseDbConnection},
	)
	<-wait
}
