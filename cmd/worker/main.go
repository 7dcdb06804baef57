// Package main runs the background worker: queued jobs plus the recurring
// ad-integrity verification ticker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/akashbiswas0/Avenger/config"
	"github.com/akashbiswas0/Avenger/internal/accounts"
	"github.com/akashbiswas0/Avenger/internal/assets"
	"github.com/akashbiswas0/Avenger/internal/banner"
	"github.com/akashbiswas0/Avenger/internal/listings"
	"github.com/akashbiswas0/Avenger/internal/payments"
	"github.com/akashbiswas0/Avenger/internal/render"
	"github.com/akashbiswas0/Avenger/internal/rentals"
	"github.com/akashbiswas0/Avenger/internal/verification"
	"github.com/akashbiswas0/Avenger/internal/worker"
	"github.com/akashbiswas0/Avenger/pkg/database"
	"github.com/akashbiswas0/Avenger/pkg/queue"
	"github.com/akashbiswas0/Avenger/pkg/redis"
	"github.com/akashbiswas0/Avenger/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AdsBucket:            cfg.AWS.AdsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	cipher, err := accounts.NewTokenCipher(cfg.X.TokenCryptoKey)
	if err != nil {
		logger.Fatal("token cipher (set X_TOKEN_CRYPTO_KEY to a hex 32-byte key)", zap.Error(err))
	}

	rentalRepo := rentals.NewRepository(pool)
	listingRepo := listings.NewRepository(pool)
	accountRepo := accounts.NewRepository(pool)
	payoutRepo := payments.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	assetFetcher := assets.NewFetcher(s3Client)

	publisher := banner.NewPublisher(rentalRepo, listingRepo, accountRepo, assetFetcher,
		cipher, cfg.X.APIKey, cfg.X.APISecret, logger)
	settler := payments.NewFacilitatorSettler(cfg.Payment)
	processor := worker.NewProcessor(jobQueue, publisher, payoutRepo, settler, logger)

	payoutTrigger := payments.NewTrigger(payoutRepo, jobQueue, logger)
	renderClient := render.NewClient(cfg.Verification.RenderServiceURL,
		time.Duration(cfg.Verification.RenderTimeoutSec)*time.Second, logger)
	runner := verification.NewRunner(rentalRepo, renderClient, payoutTrigger, cfg.Verification, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go runVerificationLoop(workerCtx, runner, cfg.Verification.IntervalHours, logger)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

// runVerificationLoop runs the integrity check on a fixed cadence. The
// per-rental cooldown makes overlap with the HTTP cron trigger harmless.
func runVerificationLoop(ctx context.Context, runner *verification.Runner, intervalHours int, logger *zap.Logger) {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runner.Run(ctx); err != nil {
				logger.Error("verification run failed", zap.Error(err))
			}
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
