package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chainproof/pkg/db"
	"chainproof/pkg/httpx"
	"chainproof/pkg/logging"
	"chainproof/services/backend/internal/auth"
	"chainproof/services/backend/internal/gatewayclient"
	"chainproof/services/backend/internal/ipfs"
	"chainproof/services/backend/internal/lookup"
	"chainproof/services/backend/internal/metadata"
	"chainproof/services/backend/internal/ratelimit"
	"chainproof/services/backend/internal/sepolia"
	"chainproof/services/backend/internal/store"
)

func main() {
	logger, err := logging.New("chainproof-backend")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultOptions())
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	anchors, err := sepolia.Dial(ctx, cfg.Sepolia, logger)
	if err != nil {
		logger.Fatal("failed to set up sepolia client", zap.Error(err))
	}
	strip, err := metadata.New(cfg.ExiftoolPath, logger)
	if err != nil {
		logger.Fatal("failed to start exiftool", zap.Error(err))
	}
	pinata := ipfs.New(cfg.PinataAPIURL, cfg.PinataGatewayURL, cfg.PinataJWT, cfg.IPFSGateways, logger)
	pinata.MaxBytes = cfg.MaxUploadSize
	if cfg.PinataJWT == "" {
		logger.Warn("PINATA_JWT not set; uploads will fail")
	}

	lk := lookup.New(st, cfg.Pepper)
	if lk.UsingDefaultPepper() {
		logger.Warn("LOOKUP_PEPPER not set; using the default pepper")
	}

	cleanup := []func() error{strip.Close}
	var limiter ratelimit.Limiter = ratelimit.NewFixedWindow(cfg.SubmitLimitPerHour, time.Hour)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		limiter = ratelimit.NewRedis(rdb, "chainproof:submit:", cfg.SubmitLimitPerHour, time.Hour)
		cleanup = append(cleanup, rdb.Close)
	}
	cleanup = append(cleanup, func() error { pool.Close(); return nil })

	srv := &server{
		cfg:     cfg,
		store:   st,
		auth:    auth.NewService(st),
		lookup:  lk,
		fabric:  gatewayclient.New(cfg.GatewayURL, cfg.SharedSecret),
		ipfs:    pinata,
		anchors: anchors,
		strip:   strip,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
	logger.Info("chainproof backend ready",
		zap.Int("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("fabric_gateway", cfg.GatewayURL),
		zap.Bool("sepolia", anchors.Configured()),
		zap.Bool("sepolia_write", anchors.CanWrite()),
		zap.Int64("max_upload_bytes", cfg.MaxUploadSize),
	)
	if err := httpx.Serve(ctx, fmt.Sprintf(":%d", cfg.Port), srv.routes(), logger, cleanup...); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
