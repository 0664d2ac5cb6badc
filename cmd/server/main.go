// Package main runs the meeting signaling relay with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-meet/signaling/config"
	"github.com/aura-meet/signaling/internal/diagnostics"
	"github.com/aura-meet/signaling/internal/mailbox"
	"github.com/aura-meet/signaling/internal/meeting"
	"github.com/aura-meet/signaling/internal/meetinglog"
	"github.com/aura-meet/signaling/internal/middleware"
	"github.com/aura-meet/signaling/internal/registry"
	"github.com/aura-meet/signaling/internal/relay"
	"github.com/aura-meet/signaling/pkg/database"
	"github.com/aura-meet/signaling/pkg/redis"
	"github.com/aura-meet/signaling/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Core state: registry owns connections, directory owns meetings and
	// writes membership back through the registry.
	reg := registry.New(logger)
	dir := meeting.NewDirectory(reg, logger)
	broadcaster := relay.NewBroadcaster(reg, logger)
	signaler := relay.NewSignaler(broadcaster, logger)

	// Optional meeting history (Postgres).
	var meetingLogRepo *meetinglog.Repository
	var routerLog relay.MeetingLogger
	if cfg.Database.URL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Warn("meeting history disabled", zap.Error(err))
		} else {
			defer pool.Close()
			if err := database.Migrate(ctx, pool); err != nil {
				logger.Fatal("migrate", zap.Error(err))
			}
			meetingLogRepo = meetinglog.NewRepository(pool)
			routerLog = meetingLogRepo
		}
	}

	// Signaling mailbox: Redis when configured, in-memory otherwise.
	var store mailbox.Store = mailbox.NewMemory()
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis mailbox disabled, using in-memory store", zap.Error(err))
		} else {
			defer rdb.Close()
			store = mailbox.NewRedis(rdb.Client, logger)
		}
	}

	msgRouter := relay.NewRouter(reg, dir, broadcaster, signaler, routerLog, registry.SystemClock(), logger)

	monitor := relay.NewMonitor(reg, registry.SystemClock(),
		time.Duration(cfg.Liveness.HeartbeatIntervalSec)*time.Second,
		time.Duration(cfg.Liveness.TimeoutCheckSec)*time.Second,
		time.Duration(cfg.Liveness.ActivityTimeoutSec)*time.Second,
		logger,
	)

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEUrls))
	for _, u := range cfg.WebRTC.ICEUrls {
		if u != "" {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
		}
	}

	diag := diagnostics.NewHandler(reg, dir, store, meetingLogRepo, iceServers, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/stats", diag.Stats)
	router.GET("/meetings", diag.Meetings)
	router.GET("/ice-servers", diag.ICEServers)
	router.GET("/meeting-history", diag.History)

	// Store-and-forward signaling for polling clients.
	router.POST("/signaling/:meeting/:from/:to/:kind", diag.PutSignal)
	router.GET("/signaling/:meeting/:from/:to", diag.GetSignal)

	pongWait := time.Duration(cfg.Liveness.ActivityTimeoutSec) * time.Second
	router.GET("/ws", relay.ServeWS(msgRouter, broadcaster, logger, iceServers, pongWait))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()
	go monitor.Run(monitorCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	msgRouter.Shutdown()
	monitorCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
