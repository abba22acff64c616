package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"social-chat-service/internal/config"
	"social-chat-service/internal/db"
	"social-chat-service/internal/grpcserver"
	"social-chat-service/internal/handlers"
	"social-chat-service/internal/logger"
	"social-chat-service/internal/media"
	"social-chat-service/internal/middleware"
	"social-chat-service/internal/notifications"
	"social-chat-service/internal/observability"
	"social-chat-service/internal/rabbitmq"
	"social-chat-service/internal/repositories"
	"social-chat-service/internal/service"
	"social-chat-service/internal/telemetry"
	"social-chat-service/internal/tracing"
	"social-chat-service/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "social-chat-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Env, log)

	store, err := media.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL, cfg.MediaMaxBytes)
	if err != nil {
		return fmt.Errorf("init media store: %w", err)
	}

	svc := buildApp(cfg, database, store, log)

	go svc.dispatcher.Run(ctx)

	if cfg.AMQPURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.NotificationQueue, cfg.NotificationRoutingKey, log)
		if err != nil {
			return fmt.Errorf("init notification consumer: %w", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, svc.bridge.HandleDelivery); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Warn("AMQP_URL empty, notification intake disabled")
	}

	debug := handlers.DebugDeps{Audit: auditEmitter, Rooms: svc.hub, PublisherMode: rabbitmq.PublisherMode(publisher)}
	router := newRouter(cfg, svc, auditEmitter, debug, log)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	grpcSrv := grpcserver.New(cfg.ServiceName, log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("http server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	grpcSrv.SetServing(true)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case runErr = <-errCh:
		log.Error("server failed", zap.Error(runErr))
	}

	grpcSrv.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.Stop()
	stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	return runErr
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.IsProduction() {
		return logger.New(cfg.LogLevel)
	}
	return logger.NewDevelopment()
}

type app struct {
	hub         *ws.Hub
	chats       *service.MessagingService
	bridge      *notifications.Bridge
	dispatcher  *ws.Dispatcher
	wsHandler   *ws.Handler
	mediaDir    string
	jwtVerifier *middleware.JWTVerifier
}

func buildApp(cfg *config.Config, database *sqlx.DB, store *media.LocalStore, log *logger.Logger) *app {
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)

	hub := ws.NewHub(log)
	resolver := service.NewConversationResolver(conversationRepo, userRepo, log.Named("resolver"))
	chats := service.NewMessagingService(conversationRepo, messageRepo, resolver, store, hub, log.Named("messaging"))
	bridge := notifications.NewBridge(notificationRepo, hub, log)

	verifier := middleware.NewJWTVerifier(cfg.JWTSecret)
	dispatcher := ws.NewDispatcher(hub, conversationRepo, cfg.WSSendBuffer, log)

	return &app{
		hub:         hub,
		chats:       chats,
		bridge:      bridge,
		dispatcher:  dispatcher,
		wsHandler:   ws.NewHandler(dispatcher, verifier, cfg.WSSendBuffer, log),
		mediaDir:    store.Dir(),
		jwtVerifier: verifier,
	}
}

func newRouter(cfg *config.Config, a *app, auditEmitter *telemetry.AuditEmitter, debug handlers.DebugDeps, log *logger.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(log.Named("http")),
		observability.HTTPMetricsMiddleware(),
		gin.Recovery(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", a.wsHandler.Handle)
	router.Static("/media", a.mediaDir)

	protected := []gin.HandlerFunc{
		middleware.Auth(a.jwtVerifier),
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}

	chatGroup := router.Group("/chat", protected...)
	handlers.NewChatHandler(a.chats, auditEmitter, log.Named("chat")).Register(chatGroup)

	notificationGroup := router.Group("/notification", protected...)
	handlers.NewNotificationHandler(a.bridge, log.Named("notification")).Register(notificationGroup)

	handlers.RegisterDebugRoutes(router, debug, cfg.DebugRoutes)
	return router
}
