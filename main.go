package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	grpcserver "messaging-service/internal/grpc"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/notify"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/retention"
	"messaging-service/internal/services"
	"messaging-service/internal/storage"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.LogLevel, cfg.Environment == "production")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.WithError(err).Warn("tracing disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	database, err := db.Connect(cfg.DatabaseDSN, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to db")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	log.WithField("amqp_enabled", rabbitmq.Enabled(publisher)).Info("event publisher ready")
	observability.SetPublisher(publisher)

	auditor := telemetry.NewAuditEmitter(publisher, "audit_log.messages", serviceName, cfg.Environment, log)
	notifier := notify.NewEmailNotifier(publisher, log)

	chatRepo := repositories.NewChatRepo(database)
	transferRepo := repositories.NewTransferRepo(database)
	replyRepo := repositories.NewReplyRepo(database)
	userRepo := repositories.NewUserRepo(database)

	chatService := services.NewChatService(chatRepo, transferRepo, userRepo, notifier, auditor, log, services.RetentionPolicy{
		Window:    cfg.RetentionWindow,
		BatchSize: cfg.RetentionBatchSize,
	})
	transferService := services.NewTransferService(transferRepo, chatRepo, replyRepo, userRepo, notifier, auditor, log)
	replyService := services.NewReplyService(replyRepo, chatRepo, transferRepo, userRepo, log)

	tokens := auth.NewTokenManager(cfg.JWTSecret, 24*time.Hour)

	var uploader storage.Uploader
	if cfg.GCSBucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			log.WithError(err).Fatal("failed to create attachment uploader")
		}
		defer gcs.Close()
		uploader = gcs
	}

	hub := ws.NewHub(log)
	gateway := ws.NewGateway(hub, tokens, chatService, replyService, transferService, uploader, ws.Config{
		WriteTimeout:       cfg.WSWriteTimeout,
		RatePerMinute:      cfg.WSRatePerMinute,
		RateBurst:          cfg.WSRateBurst,
		MaxAttachments:     cfg.MaxAttachments,
		MaxAttachmentBytes: int(cfg.MaxAttachmentBytes),
		UploadTimeout:      cfg.UploadTimeout,
		DispatchTimeout:    cfg.WSDispatchTimeout,
	}, log)

	retentionJob := retention.NewJob(chatService, cfg.RetentionInterval, log)
	go retentionJob.Run(ctx)

	chatHandler := handlers.NewChatHandler(chatService, replyService, gateway, log)
	transferHandler := handlers.NewTransferHandler(transferService, replyService, log)
	replyHandler := handlers.NewReplyHandler(replyService, gateway, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", healthz(database))

	authMiddleware := middleware.AuthMiddleware(tokens)

	chats := router.Group("/chats", authMiddleware)
	chats.POST("", chatHandler.CreateChat)
	chats.GET("", chatHandler.ListChats)
	chats.GET("/mine", chatHandler.ListMine)
	chats.GET("/sent", chatHandler.ListSent)
	chats.GET("/received", chatHandler.ListReceived)
	chats.GET("/deleted", chatHandler.ListDeleted)
	chats.GET("/:chat_id", chatHandler.GetChat)
	chats.PATCH("/:chat_id", chatHandler.UpdateChat)
	chats.POST("/:chat_id/read", chatHandler.MarkAsRead)
	chats.POST("/:chat_id/hide", chatHandler.HideChat)
	chats.DELETE("/:chat_id", chatHandler.DeleteChat)
	chats.POST("/:chat_id/restore", chatHandler.RestoreChat)
	chats.GET("/:chat_id/replies", chatHandler.ListReplies)

	transfers := router.Group("/transfers", authMiddleware)
	transfers.POST("", transferHandler.CreateTransfer)
	transfers.GET("/sent", transferHandler.ListSent)
	transfers.GET("/received", transferHandler.ListReceived)
	transfers.GET("/:transfer_id", transferHandler.GetTransfer)
	transfers.PUT("/:transfer_id", transferHandler.UpdateTransfer)
	transfers.POST("/:transfer_id/read", transferHandler.MarkAsRead)
	transfers.POST("/:transfer_id/hide", transferHandler.HideTransfer)
	transfers.DELETE("/:transfer_id", transferHandler.DeleteTransfer)
	transfers.GET("/:transfer_id/replies", transferHandler.ListReplies)

	replies := router.Group("/replies", authMiddleware)
	replies.POST("", replyHandler.CreateReply)
	replies.PATCH("/:reply_id", replyHandler.UpdateReply)
	replies.DELETE("/:reply_id", replyHandler.DeleteReply)

	router.GET("/ws", gateway.Handle)

	handlers.RegisterDebugRoutes(router, auditor, retentionJob, cfg.DebugRoutes)

	ops := grpcserver.NewOpsServer(map[string]grpcserver.Checker{
		"postgres": func(ctx context.Context) error { return db.Ping(ctx, database) },
	}, 10*time.Second, log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.WithError(err).Fatal("failed to listen for grpc")
	}
	go func() {
		if err := ops.Serve(ctx, lis); err != nil {
			log.WithError(err).Error("grpc server exited")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown failed")
	}
	ops.Stop()
}

func healthz(database *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context(), database); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": http.StatusServiceUnavailable, "message": "database unavailable", "data": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "message": "ok", "data": nil})
	}
}
