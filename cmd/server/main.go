// Package main runs the meeting-bot HTTP API with WebSocket fan-out and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/colon-app/backend/config"
	"github.com/colon-app/backend/internal/auth"
	"github.com/colon-app/backend/internal/bots"
	"github.com/colon-app/backend/internal/middleware"
	"github.com/colon-app/backend/internal/realtime"
	"github.com/colon-app/backend/internal/recordings"
	"github.com/colon-app/backend/internal/sessions"
	"github.com/colon-app/backend/internal/users"
	"github.com/colon-app/backend/pkg/database"
	"github.com/colon-app/backend/pkg/dedupe"
	"github.com/colon-app/backend/pkg/identity"
	"github.com/colon-app/backend/pkg/logger"
	"github.com/colon-app/backend/pkg/queue"
	"github.com/colon-app/backend/pkg/recall"
	"github.com/colon-app/backend/pkg/redis"
	"github.com/colon-app/backend/pkg/response"
	"github.com/colon-app/backend/pkg/secrets"
	"github.com/colon-app/backend/pkg/storage"
)

const (
	secretRecallAPIKey   = "recall-api-key"
	secretWebhookSigning = "recall-webhook-secret"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on config, so fall back to a bare production logger.
		boot, _ := zap.NewProduction()
		boot.Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Options{
		Development: cfg.Log.IsDevelopment(),
		Level:       cfg.Log.Level,
		FilePath:    cfg.Log.FilePath,
	})
	defer log.Sync()

	if !cfg.Log.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, log)
	if err != nil {
		log.Fatal("aws config", zap.Error(err))
	}

	resolver := secrets.NewResolver(ssm.NewFromConfig(awsCfg), log)
	secretValues, err := resolver.ResolveAll(ctx,
		secrets.Spec{Name: secretRecallAPIKey, Value: cfg.Recall.APIKey, Param: cfg.Recall.APIKeyParam},
		secrets.Spec{Name: secretWebhookSigning, Value: cfg.Recall.WebhookSecret, Param: cfg.Recall.WebhookSecretParam},
	)
	if err != nil {
		log.Fatal("resolve secrets", zap.Error(err))
	}

	recallClient := recall.NewClient(recall.Config{
		BaseURL:         cfg.Recall.BaseURL,
		APIKey:          secretValues[secretRecallAPIKey],
		MediaRetries:    cfg.Recall.MediaRetries,
		MediaRetryDelay: cfg.Recall.MediaRetryDelay,
		Timeout:         cfg.Recall.Timeout,
	}, log)

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, log)
	if err != nil {
		log.Fatal("s3", zap.Error(err))
	}
	if cfg.AWS.CloudFrontDomain != "" {
		cdn, err := storage.NewCloudFront(cfg.AWS.CloudFrontDomain, cfg.AWS.CloudFrontKeyPairID, cfg.AWS.CloudFrontPrivateKey)
		if err != nil {
			log.Fatal("cloudfront", zap.Error(err))
		}
		s3Client.WithCloudFront(cdn)
		log.Info("recording URLs signed by CloudFront", zap.String("domain", cfg.AWS.CloudFrontDomain))
	}

	cognito := identity.NewCognito(cognitoidentityprovider.NewFromConfig(awsCfg), cfg.AWS.CognitoUserPoolID, log)

	var tokens *auth.JWTService
	if cfg.Auth.Mode == config.AuthModeGateway {
		tokens = auth.NewGatewayService()
	} else {
		tokens = auth.NewJWTService(cfg.Auth.JWTSecret)
	}

	pubsub := realtime.NewRedisPubSub(rdb.Client, log)
	hub := realtime.NewHub(log, pubsub, pubsub)

	// Persistence
	botRepo := bots.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	eventRepo := sessions.NewEventRepository(pool)
	recordingRepo := recordings.NewRepository(pool)
	userRepo := users.NewRepository(pool)

	jobQueue := queue.NewQueue(rdb.Client, log)
	ingestor := recordings.NewIngestor(botRepo, sessionRepo, recordingRepo, s3Client, hub, log)
	purger := recordings.NewPurger(recordingRepo, s3Client, log)

	botHandler := bots.NewHandler(botRepo, sessionRepo, log)
	sessionHandler := sessions.NewHandler(botRepo, sessionRepo, eventRepo, recallClient, log)
	trialHandler := sessions.NewTrialHandler(recallClient, log)
	recordingHandler := recordings.NewHandler(recordingRepo, s3Client, log)
	userHandler := users.NewHandler(users.Deps{
		Users:      userRepo,
		Bots:       botRepo,
		Sessions:   sessionRepo,
		Events:     eventRepo,
		Recordings: purger,
		Identity:   cognito,
	}, log)
	webhookHandler, err := recordings.NewWebhookHandler(secretValues[secretWebhookSigning], recordings.WebhookDeps{
		Sessions:  sessionRepo,
		Events:    eventRepo,
		Media:     recallClient,
		Ingestor:  ingestor,
		Seen:      dedupe.NewFallback(dedupe.NewRedis(rdb.Client, dedupe.DefaultTTL), dedupe.NewMemory(dedupe.DefaultTTL)),
		Retries:   jobQueue,
		Publisher: hub,
	}, log)
	if err != nil {
		log.Fatal("webhook handler", zap.Error(err))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(log))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public: trial bots and provider webhooks (signature checked in handler)
	public := router.Group("")
	trialHandler.Register(public)
	webhookHandler.Register(public)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, tokens, botRepo, log))

	api := router.Group("")
	api.Use(middleware.Identity(tokens))
	{
		userHandler.Register(api)
		botHandler.Register(api)
		sessionHandler.Register(api)
		recordingHandler.Register(api)
	}

	router.NoRoute(func(c *gin.Context) { response.NotFound(c, "Route not found") })

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("auth_mode", cfg.Auth.Mode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
