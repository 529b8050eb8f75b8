package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukepan/multi-rooms-chat-back/internal/api"
	"github.com/dukepan/multi-rooms-chat-back/internal/auth"
	"github.com/dukepan/multi-rooms-chat-back/internal/broadcast"
	"github.com/dukepan/multi-rooms-chat-back/internal/cache"
	"github.com/dukepan/multi-rooms-chat-back/internal/chat"
	"github.com/dukepan/multi-rooms-chat-back/internal/clock"
	"github.com/dukepan/multi-rooms-chat-back/internal/config"
	"github.com/dukepan/multi-rooms-chat-back/internal/db"
	"github.com/dukepan/multi-rooms-chat-back/internal/delivery"
	"github.com/dukepan/multi-rooms-chat-back/internal/middleware"
	"github.com/dukepan/multi-rooms-chat-back/internal/observability"
	"github.com/dukepan/multi-rooms-chat-back/internal/presence"
	"github.com/dukepan/multi-rooms-chat-back/internal/ratelimit"
	"github.com/dukepan/multi-rooms-chat-back/internal/sequencer"
	"github.com/dukepan/multi-rooms-chat-back/internal/stats"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

func main() {
	cfg := config.Load()

	otelCleanup, err := observability.InitOpenTelemetry("multi-rooms-chat-back", "1.0.0")
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		if err := otelCleanup(context.Background()); err != nil {
			log.Printf("Error shutting down OpenTelemetry: %v", err)
		}
	}()

	logger := utils.NewLogger(cfg.LogLevel)
	clk := clock.SystemClock{}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize database: %v", err)
	}

	redisCache, err := cache.New(cfg.BroadcastRedisURL)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize cache: %v", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize JWT manager: %v", err)
	}

	userRepo := db.NewUserRepository(database)
	roomRepo := db.NewChatRoomRepository(database)
	memberRepo := db.NewRoomMemberRepository(database)
	messageRepo := db.NewMessageRepository(database)

	authSvc := auth.NewService(userRepo, jwtMgr, clk, cfg.ServerBcryptCost, cfg.JWTExpiration())

	localTopic := broadcast.NewTopic(cfg.BroadcastCapacity)
	remote := broadcast.NewRemote(redisCache, localTopic, logger)
	fabric := broadcast.NewFabric(remote, localTopic, logger)

	seq := sequencer.New(redisCache.Client())
	limiter := ratelimit.New(redisCache.Client(), ratelimit.Limits{
		MaxMessagesPerMinute:  cfg.RateLimitMaxMessagesPerMinute,
		MaxConnectionsPerUser: cfg.RateLimitMaxConnectionsPerUser,
	})

	deliveryTracker := delivery.New(database.GetPool())

	statsSink := stats.New(stats.Config{
		MaxQueueSize:  cfg.StatsMaxQueueSize,
		FlushInterval: cfg.StatsFlushInterval(),
	}, stats.NewLogExporter(logger), logger)
	presenceEngine := presence.New(redisCache.Client(), clk, cfg.PresenceIdleWindow(), statsSink.Enqueue)

	chatSvc := chat.NewService(roomRepo, memberRepo, messageRepo, fabric, seq, limiter, presenceEngine, deliveryTracker, clk)
	reacts := chat.NewReactionStore(database.GetPool(), fabric)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	go statsSink.Start(rootCtx)
	go runPresenceSweep(rootCtx, presenceEngine, logger, cfg.PresenceSweepInterval())

	httpThrottle, err := middleware.NewHTTPThrottle(redisCache.Client(), cfg.HTTPThrottleRate, logger)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize HTTP throttle: %v", err)
	}

	router := api.NewRouter(authSvc, chatSvc, reacts, roomRepo, memberRepo, presenceEngine, limiter, deliveryTracker, fabric, jwtMgr, logger, cfg, httpThrottle.Middleware)

	server := &http.Server{
		Addr:         cfg.ServerHost + ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(context.Background(), "Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(context.Background(), "Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	cancelRoot()
	gracefulShutdown(context.Background(), logger, server, database, redisCache, statsSink, otelCleanup)

	logger.Info(context.Background(), "Application stopped.")
}

// runPresenceSweep periodically evicts stale presence entries whose
// liveness key has already expired in Redis but whose room/user indices
// are still present (a member who disconnected without a clean close).
func runPresenceSweep(ctx context.Context, engine *presence.Engine, logger *utils.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.Sweep(ctx); err != nil {
				logger.Error(ctx, "presence sweep failed: %v", err)
			}
		}
	}
}

// gracefulShutdown mirrors the teacher's centralized shutdown sequence,
// draining the HTTP server first and the storage connections last.
func gracefulShutdown(ctx context.Context, logger *utils.Logger, server *http.Server, database *db.Database, redisCache *cache.Cache, statsSink *stats.Sink, otelCleanup func(context.Context) error) {
	logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error: %v", err)
	} else {
		logger.Info(ctx, "HTTP server stopped.")
	}

	statsSink.Stop()
	logger.Info(ctx, "Stats sink stopped.")

	if err := database.Close(); err != nil {
		logger.Error(ctx, "Database close error: %v", err)
	} else {
		logger.Info(ctx, "Database connection closed.")
	}

	if err := redisCache.Close(); err != nil {
		logger.Error(ctx, "Redis cache close error: %v", err)
	} else {
		logger.Info(ctx, "Redis cache connection closed.")
	}

	if otelCleanup != nil {
		if err := otelCleanup(shutdownCtx); err != nil {
			logger.Error(ctx, "OpenTelemetry shutdown error: %v", err)
		} else {
			logger.Info(ctx, "OpenTelemetry shut down.")
		}
	}

	logger.Info(ctx, "Graceful shutdown complete.")
}
