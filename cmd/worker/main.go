// Package main runs the background worker: recording ingest retries and expired session cleanup.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/colon-app/backend/config"
	"github.com/colon-app/backend/internal/bots"
	"github.com/colon-app/backend/internal/realtime"
	"github.com/colon-app/backend/internal/recordings"
	"github.com/colon-app/backend/internal/sessions"
	"github.com/colon-app/backend/internal/worker"
	"github.com/colon-app/backend/pkg/database"
	"github.com/colon-app/backend/pkg/logger"
	"github.com/colon-app/backend/pkg/queue"
	"github.com/colon-app/backend/pkg/redis"
	"github.com/colon-app/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Options{
		Development: cfg.Log.IsDevelopment(),
		Level:       cfg.Log.Level,
		FilePath:    cfg.Log.FilePath,
	}).Named("worker")
	defer log.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

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

	botRepo := bots.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	recordingRepo := recordings.NewRepository(pool)

	// Completion events reach API instances through Redis; the worker has no local subscribers.
	pubsub := realtime.NewRedisPubSub(rdb.Client, log)
	hub := realtime.NewHub(log, pubsub, nil)

	ingestor := recordings.NewIngestor(botRepo, sessionRepo, recordingRepo, s3Client, hub, log)
	jobQueue := queue.NewQueue(rdb.Client, log)
	processor := worker.NewRecordingProcessor(ingestor, jobQueue, log)
	pruner := worker.NewSessionPruner(sessionRepo, cfg.Worker.PruneInterval, log)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		pruner.Run(workerCtx)
	}()
	log.Info("worker started", zap.Duration("prune_interval", cfg.Worker.PruneInterval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	log.Info("worker stopped")
}
