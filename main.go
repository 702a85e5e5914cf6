package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/chat"
	"chat-realtime/internal/config"
	"chat-realtime/internal/db"
	"chat-realtime/internal/fanout"
	"chat-realtime/internal/grpcserver"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	var (
		store    repositories.Store
		database *sqlx.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		store = repositories.NewMemoryStore().Store()
		logger.Warn("using in-memory store, nothing survives a restart")
	default:
		database, err = db.Connect(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			logger.Fatal("failed to connect to db", zap.Error(err))
		}
		store = repositories.NewPostgresStore(database)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Env, logger)

	hub := ws.NewHub()
	svc := chat.New(chat.Deps{
		Store:        store,
		Presence:     presence.New(nil),
		Fanout:       fanout.New(hub, logger),
		Viewers:      hub,
		Logger:       logger,
		TypingWindow: cfg.TypingTimeout,
		PageLimit:    cfg.HistoryPageLimit,
	})
	provider := auth.NewJWTProvider(cfg.JWTSecret, store.Users)
	wsHandler := ws.NewHandler(hub, svc, provider, ws.Options{
		SendBuffer:   cfg.SessionSendBuffer,
		RateLimit:    cfg.SessionRateLimit,
		IdleTimeout:  cfg.SessionIdleTimeout,
		WriteTimeout: cfg.WSWriteTimeout,
	}, logger)

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/ws", wsHandler.Handle)

	handlers.Register(router,
		handlers.NewRoomHandler(svc, audit),
		handlers.NewMessageHandler(svc),
		middleware.Auth(provider))
	handlers.RegisterDebugRoutes(router, audit, provider, cfg.DebugRoutes)

	health := grpcserver.New(logger)
	if database != nil {
		go health.Watch(ctx, 10*time.Second, database.PingContext)
	} else {
		health.SetServing(true)
	}
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("grpc listen failed", zap.Error(err))
	}
	go func() {
		if err := health.Serve(grpcLis); err != nil {
			logger.Error("grpc server stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health.SetServing(false)
	hub.CloseAll("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	health.Stop()
	svc.Close()
	if err := publisher.Close(); err != nil {
		logger.Warn("publisher close", zap.Error(err))
	}
	if database != nil {
		_ = database.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
