package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chainproof/pkg/httpx"
	"chainproof/pkg/logging"
)

func main() {
	logger, err := logging.New("chainproof-mockposter")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	port := envIntDefault("SERVICE_PORT", 3000)
	p := &poster{
		delay:     time.Duration(envIntDefault("POST_DELAY_MS", 500)) * time.Millisecond,
		publicDir: strings.TrimSpace(os.Getenv("PUBLIC_DIR")),
		logger:    logger,
		now:       time.Now,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("mock X poster ready; no real X API calls are made",
		zap.Int("port", port), zap.Duration("delay", p.delay), zap.String("public_dir", p.publicDir))
	if err := httpx.Serve(ctx, fmt.Sprintf(":%d", port), p.routes(), logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func envIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < 0 {
		return 0
	}
	return v
}
