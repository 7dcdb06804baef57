// Package main runs the banner rental marketplace HTTP server.
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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/akashbiswas0/Avenger/config"
	"github.com/akashbiswas0/Avenger/internal/accounts"
	"github.com/akashbiswas0/Avenger/internal/ads"
	"github.com/akashbiswas0/Avenger/internal/assets"
	"github.com/akashbiswas0/Avenger/internal/auth"
	"github.com/akashbiswas0/Avenger/internal/banner"
	"github.com/akashbiswas0/Avenger/internal/listings"
	"github.com/akashbiswas0/Avenger/internal/middleware"
	"github.com/akashbiswas0/Avenger/internal/payments"
	"github.com/akashbiswas0/Avenger/internal/render"
	"github.com/akashbiswas0/Avenger/internal/rentals"
	"github.com/akashbiswas0/Avenger/internal/verification"
	"github.com/akashbiswas0/Avenger/internal/worker"
	"github.com/akashbiswas0/Avenger/pkg/database"
	"github.com/akashbiswas0/Avenger/pkg/queue"
	"github.com/akashbiswas0/Avenger/pkg/redis"
	"github.com/akashbiswas0/Avenger/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	assetFetcher := assets.NewFetcher(s3Client)

	// Accounts (X OAuth connect flow)
	cipher, err := accounts.NewTokenCipher(cfg.X.TokenCryptoKey)
	if err != nil {
		logger.Fatal("token cipher (set X_TOKEN_CRYPTO_KEY to a hex 32-byte key)", zap.Error(err))
	}
	stateStore := accounts.NewOAuthStateStore(rdb)
	accountRepo := accounts.NewRepository(pool)

	// Listings
	listingRepo := listings.NewRepository(pool)
	listingHandler := listings.NewHandler(listingRepo)

	accountHandler := accounts.NewHandler(cfg.X.APIKey, cfg.X.APISecret, cfg.X.CallbackURL,
		stateStore, accountRepo, cipher, jwtService, listingRepo, logger)

	// Rentals
	rentalRepo := rentals.NewRepository(pool)
	rentalService := rentals.NewService(rentalRepo, listingRepo, jobQueue, assetFetcher, cfg.Payment, logger)
	rentalHandler := rentals.NewHandler(rentalService, rentalRepo, listingRepo, cfg.Server.BaseURL)

	// Payouts
	payoutRepo := payments.NewRepository(pool)
	payoutTrigger := payments.NewTrigger(payoutRepo, jobQueue, logger)
	settler := payments.NewFacilitatorSettler(cfg.Payment)

	// Verification
	renderClient := render.NewClient(cfg.Verification.RenderServiceURL,
		time.Duration(cfg.Verification.RenderTimeoutSec)*time.Second, logger)
	runner := verification.NewRunner(rentalRepo, renderClient, payoutTrigger, cfg.Verification, logger)
	verificationHandler := verification.NewHandler(runner)

	// Background jobs: banner activation and payout settlement
	publisher := banner.NewPublisher(rentalRepo, listingRepo, accountRepo, assetFetcher,
		cipher, cfg.X.APIKey, cfg.X.APISecret, logger)
	processor := worker.NewProcessor(jobQueue, publisher, payoutRepo, settler, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// X OAuth connect flow (public)
	router.POST("/x-oauth/initiate", accountHandler.Initiate)
	router.GET("/x-oauth/callback", accountHandler.Callback)

	// Marketplace (public)
	router.GET("/listings", listingHandler.List)
	router.GET("/listings/:id", listingHandler.GetByID)

	// Rentals (advertiser side; wallet-identified, no session)
	router.POST("/rentals", rentalHandler.Create)
	router.GET("/rentals", rentalHandler.ListByWallet)
	router.GET("/rentals/:id", rentalHandler.GetByID)

	// Ad creative uploads (S3-backed)
	if s3Client != nil {
		adHandler := ads.NewHandler(s3Client, logger)
		router.POST("/ads/upload", adHandler.Upload)
		router.GET("/ads/url", adHandler.DownloadURL)
	}

	// Owner dashboard (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/x-account", accountHandler.Me)
		api.DELETE("/x-account", accountHandler.Disconnect)

		api.POST("/listings", listingHandler.Create)
		api.GET("/my/listings", listingHandler.ListMine)
		api.PATCH("/listings/:id/deactivate", listingHandler.Deactivate)

		api.POST("/rentals/approve", rentalHandler.Decide)
		api.GET("/my/rentals", rentalHandler.ListMine)
	}

	// Recurring verification trigger (shared-secret auth, invoked by cron)
	cron := router.Group("/cron", middleware.CronAuth(cfg.Verification.CronSecret))
	cron.POST("/verify-rentals", verificationHandler.Trigger)
	cron.GET("/verify-rentals", verificationHandler.Trigger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background job consumer (banner activations, settlements)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go processor.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
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
