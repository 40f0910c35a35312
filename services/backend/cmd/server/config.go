package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"

	"chainproof/services/backend/internal/ipfs"
	"chainproof/services/backend/internal/lookup"
	"chainproof/services/backend/internal/sepolia"
)

const (
	defaultMaxUpload = 100 * datasize.MB
	maxJSONBody      = 1 << 20
)

type config struct {
	Port         int
	Environment  string
	FrontendURL  string
	DatabaseURL  string
	GatewayURL   string
	SharedSecret string
	Pepper       string

	PinataJWT        string
	PinataAPIURL     string
	PinataGatewayURL string
	IPFSGateways     []string

	Sepolia        sepolia.Config
	AnchorOnSubmit bool

	RedisURL           string
	SubmitLimitPerHour int
	ExiftoolPath       string
	MaxUploadSize      int64
}

func loadConfig() (config, error) {
	cfg := config{
		Port:               envIntDefault("SERVICE_PORT", 4000),
		Environment:        envDefault("APP_ENV", "development"),
		FrontendURL:        envDefault("FRONTEND_URL", "http://localhost:7000"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GatewayURL:         envDefault("FABRIC_GATEWAY_URL", "http://localhost:5000"),
		SharedSecret:       os.Getenv("GATEWAY_SHARED_SECRET"),
		Pepper:             envDefault("LOOKUP_PEPPER", lookup.DefaultPepper),
		PinataJWT:          os.Getenv("PINATA_JWT"),
		PinataAPIURL:       envDefault("PINATA_API_URL", ipfs.DefaultAPIURL),
		PinataGatewayURL:   envDefault("PINATA_GATEWAY_URL", ipfs.DefaultGatewayURL),
		IPFSGateways:       envList("IPFS_GATEWAYS"),
		AnchorOnSubmit:     envBoolDefault("ANCHOR_ON_SUBMIT", true),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		SubmitLimitPerHour: envIntDefault("SUBMIT_RATE_LIMIT_PER_HOUR", 20),
		ExiftoolPath:       os.Getenv("EXIFTOOL_PATH"),
		Sepolia: sepolia.Config{
			RPCURL:          strings.TrimSpace(os.Getenv("SEPOLIA_RPC_URL")),
			ContractAddress: strings.TrimSpace(os.Getenv("ANCHOR_CONTRACT_ADDRESS")),
			PrivateKey:      strings.TrimSpace(os.Getenv("DEPLOYER_PRIVATE_KEY")),
		},
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	size, err := parseSize(os.Getenv("MAX_UPLOAD_SIZE"), defaultMaxUpload)
	if err != nil {
		return cfg, fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	cfg.MaxUploadSize = size
	return cfg, nil
}

// parseSize accepts datasize strings like "100MB" or "512kb".
func parseSize(raw string, def datasize.ByteSize) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return int64(def.Bytes()), nil
	}
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(raw)); err != nil {
		return 0, err
	}
	if v == 0 {
		return int64(def.Bytes()), nil
	}
	return int64(v.Bytes()), nil
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBoolDefault(key string, def bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return def
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
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
