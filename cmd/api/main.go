package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	cacheAdapter "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/cache/adapter"
	cacheport "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/cache/port"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/config"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/database"
	queueAdapter "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/queue/adapter"
	qport "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/queue/port"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/realtime"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/application/task"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/application/usecase"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/auth"
	repoAdapter "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/persistence/repository/adapter"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/presentation/controller"
	relayHTTP "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/presentation/http"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/ratelimit"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/upstream"

	v1 "github.com/mohammednazmy/VoiceAssist-sub005/cmd/api/router/v1"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := database.Connect(connectCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()
	logger.Info().Msg("connected to PostgreSQL")

	// Redis backs the send-dedup window and the retry queue. Without it
	// (local development) both degrade to in-process behavior.
	var dedup cacheport.Cache
	var queueClient qport.Client
	if cfg.RedisURL != "" {
		redisCache, err := cacheAdapter.NewRedisAdapter()
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisCache.Close()
		dedup = redisCache

		asynqClient, err := queueAdapter.NewAsynqClientFromEnv()
		if err != nil {
			logger.Fatal().Err(err).Msg("asynq client failed")
		}
		defer asynqClient.Close()
		queueClient = asynqClient

		asynqServer, err := queueAdapter.NewAsynqServer()
		if err != nil {
			logger.Fatal().Err(err).Msg("asynq server failed")
		}
		task.RegisterPersistMessageTask(asynqServer, pool)
		go func() {
			if err := asynqServer.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("asynq server stopped")
			}
		}()
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set: dedup and persist-retry run in-process only")
		dedup = cacheAdapter.NewMemoryCache()
	}

	store := repoAdapter.NewPgConversationStore(pool)
	gate := auth.NewGate([]byte(cfg.JWTSecret))
	registry := realtime.NewRegistry()
	limiter := ratelimit.NewLimiter(ratelimit.DefaultLimits)
	upstreamClient := upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamAPIKey)
	persistUC := usecase.NewPersistMessageUseCase(store, queueClient, logger)

	socketCtl := controller.NewRealtimeSocketController(controller.SocketDeps{
		Gate:         gate,
		Store:        store,
		Registry:     registry,
		Limiter:      limiter,
		Upstream:     upstreamClient,
		Model:        cfg.UpstreamModel,
		Persist:      persistUC,
		Dedup:        dedup,
		Logger:       logger,
		PingInterval: cfg.PingInterval,
	})
	historyCtl := controller.NewGetHistoryController(gate, store)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(relayHTTP.Logger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	v1.RegisterRoutes(r, socketCtl, historyCtl)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
		// No blanket read/write timeouts: realtime sessions outlive any
		// sane fixed bound, liveness is enforced per connection.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting relay server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	registry.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
