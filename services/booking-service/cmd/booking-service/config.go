package main

import (
	"fmt"
	"time"

	"github.com/localli/booking/libs/config"
)

type serviceConfig struct {
	Name     string
	Port     string
	GRPCPort string

	LedgerBackend  string
	DatabaseURL    string
	MigrateOnStart bool
	SeedFile       string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	BusinessTTL    time.Duration
	IdempotencyTTL time.Duration

	KafkaBrokers string

	JWTSecret           string
	JWKSURL             string
	JWKSCache           time.Duration
	TrustGatewayHeaders bool

	RateLimitPerMinute int
	RateLimitFailOpen  bool
	CORSOrigins        []string
	BodyLimitBytes     int64
	RequestTimeout     time.Duration
}

func loadConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		Name:                config.String("SERVICE_NAME", "booking-service"),
		GRPCPort:            config.String("GRPC_PORT", ""),
		LedgerBackend:       config.String("LEDGER_BACKEND", "postgres"),
		DatabaseURL:         config.String("DATABASE_URL", ""),
		MigrateOnStart:      config.Bool("MIGRATE_ON_START", true),
		SeedFile:            config.String("BUSINESS_SEED_FILE", ""),
		RedisAddr:           config.String("REDIS_ADDR", ""),
		RedisPassword:       config.String("REDIS_PASSWORD", ""),
		RedisDB:             config.Int("REDIS_DB", 0, 0),
		BusinessTTL:         config.Seconds("BUSINESS_CACHE_TTL_SECONDS", time.Minute),
		IdempotencyTTL:      config.Seconds("IDEMPOTENCY_TTL_SECONDS", 24*time.Hour),
		KafkaBrokers:        config.String("KAFKA_BROKERS", ""),
		JWTSecret:           config.String("JWT_SECRET", ""),
		JWKSURL:             config.String("JWKS_URL", ""),
		JWKSCache:           config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute),
		TrustGatewayHeaders: config.Bool("TRUST_GATEWAY_HEADERS", false),
		RateLimitPerMinute:  config.Int("RATE_LIMIT_PER_MINUTE", 0, 0),
		RateLimitFailOpen:   config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		CORSOrigins:         config.List("CORS_ALLOWED_ORIGINS", ""),
		BodyLimitBytes:      int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1)),
		RequestTimeout:      config.Seconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second),
	}

	port, err := config.Port("PORT", "8083")
	if err != nil {
		return serviceConfig{}, err
	}
	cfg.Port = port
	if cfg.GRPCPort != "" {
		if _, err := config.Port("GRPC_PORT", cfg.GRPCPort); err != nil {
			return serviceConfig{}, err
		}
	}

	switch cfg.LedgerBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return serviceConfig{}, fmt.Errorf("DATABASE_URL is required when LEDGER_BACKEND=postgres")
		}
	case "memory":
		if cfg.SeedFile == "" {
			return serviceConfig{}, fmt.Errorf("BUSINESS_SEED_FILE is required when LEDGER_BACKEND=memory")
		}
	default:
		return serviceConfig{}, fmt.Errorf("LEDGER_BACKEND must be postgres or memory (got %q)", cfg.LedgerBackend)
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" && !cfg.TrustGatewayHeaders {
		return serviceConfig{}, fmt.Errorf("one of JWT_SECRET, JWKS_URL or TRUST_GATEWAY_HEADERS must be set")
	}
	return cfg, nil
}
