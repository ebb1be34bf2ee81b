package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/princinho/agrorfq/clock"
	"github.com/princinho/agrorfq/config"
	"github.com/princinho/agrorfq/controllers"
	"github.com/princinho/agrorfq/database"
	"github.com/princinho/agrorfq/logging"
	"github.com/princinho/agrorfq/metrics"
	"github.com/princinho/agrorfq/middleware"
	"github.com/princinho/agrorfq/payments"
	"github.com/princinho/agrorfq/services"
	"github.com/princinho/agrorfq/tracing"
	"github.com/princinho/agrorfq/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}

	uploader, closeUploader, err := openUploader(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	gateway := payments.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	var payout services.PayoutService
	if cfg.PayoutServiceURL != "" {
		payout = payments.NewPayoutClient(cfg.PayoutServiceURL, cfg.PayoutServiceToken)
	} else {
		logger.Warn("no payout service configured; instant order payouts go to admin review")
	}

	clk := clock.NewSystem()
	deps := controllers.Deps{
		Requests: services.NewRequestService(store, store, gateway, clk,
			services.WithRequestTTLs(cfg.InstantRequestTTL, cfg.StandardRequestTTL),
			services.WithCallbackURL(cfg.PaymentCallbackURL),
		),
		Offers:      services.NewOfferService(store, store, store, clk),
		Instant:     services.NewInstantTakeService(store, store, store, clk),
		Fulfillment: services.NewFulfillmentService(store, store, store, payout, clk),
		Attachments: controllers.Attachments{
			Uploader: uploader,
			Images:   utils.NewImageValidator(cfg.MaxUploadSizeMB),
			Document: utils.NewPDFValidator(cfg.MaxUploadSizeMB),
		},
		Paging:    controllers.Paging{MaxLimit: cfg.ReadQueryMaxLimit, DefaultLimit: cfg.DefaultReadQueryLimit},
		JWTSecret: cfg.JWTSecret,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	allowedOrigins := map[string]bool{}
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = true
	}
	logger.Info("cors configured", "allowed_origins", cfg.AllowedOrigins)
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.AccessLog())

	r.GET("/metrics", metrics.Handler())
	controllers.Register(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}
	closeUploader()
	closeStore(shutdownCtx)
}

// openStore connects to MongoDB, or falls back to the in-memory store when no
// URI is configured.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.Store, func(context.Context), error) {
	if cfg.MongoURI == "" {
		logger.Warn("MONGODB_URI not set; using the in-memory store")
		return database.NewMemoryStore(), func(context.Context) {}, nil
	}

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	store := database.NewMongoStore(client.Database(cfg.DatabaseName))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	logger.Info("connected to mongo", "database", cfg.DatabaseName)
	return store, func(ctx context.Context) {
		if err := client.Disconnect(ctx); err != nil {
			logger.Error("mongo disconnect", "error", err)
		}
	}, nil
}

func openUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (utils.Uploader, func(), error) {
	switch cfg.StorageBackend {
	case "r2":
		up, err := utils.NewR2Uploader(ctx, cfg.R2Bucket, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Endpoint, cfg.R2PublicDomain)
		if err != nil {
			return nil, nil, err
		}
		return up, func() {}, nil
	case "gcs":
		up, err := utils.NewGCSUploader(ctx, cfg.GCSBucket, cfg.CredentialsFileLocation)
		if err != nil {
			return nil, nil, err
		}
		return up, func() {
			if err := up.Close(); err != nil {
				logger.Error("gcs close", "error", err)
			}
		}, nil
	default:
		logger.Info("offer attachments disabled (no STORAGE_BACKEND set)")
		return nil, func() {}, nil
	}
}
