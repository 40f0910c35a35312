package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chainproof/pkg/httpx"
	"chainproof/pkg/logging"
	"chainproof/services/gateway/internal/config"
	"chainproof/services/gateway/internal/fabric"
)

func main() {
	logger, err := logging.New("chainproof-gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(os.Getenv("GATEWAY_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fab := fabric.NewManager(cfg, fabric.NewGatewayDialer(cfg), logger)
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = fab.Connect(connectCtx, cfg.DefaultOrg)
	cancel()
	if err != nil {
		logger.Fatal("failed to start fabric gateway", zap.Error(err))
	}
	if cfg.SharedSecret == "" {
		logger.Warn("GATEWAY_SHARED_SECRET not set; /api/fabric accepts unsigned requests")
	}
	logger.Info("fabric gateway ready",
		zap.Int("port", cfg.Port),
		zap.String("channel", cfg.Channel),
		zap.String("chaincode", cfg.Chaincode),
		zap.String("org", fab.CurrentOrg()),
	)

	r := newRouter(cfg, fab, logger)
	if err := httpx.Serve(ctx, fmt.Sprintf(":%d", cfg.Port), r, logger, fab.Close); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
