package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/localli/booking/libs/auth"
	"github.com/localli/booking/libs/config"
	"github.com/localli/booking/libs/db"
	"github.com/localli/booking/libs/grpcx"
	"github.com/localli/booking/libs/httpx"
	"github.com/localli/booking/libs/kafkax"
	otelx "github.com/localli/booking/libs/otel"
	"github.com/localli/booking/libs/outbox"
	"github.com/localli/booking/libs/runtime"
	"github.com/localli/booking/services/booking-service/internal/business"
	"github.com/localli/booking/services/booking-service/internal/handlers"
	"github.com/localli/booking/services/booking-service/internal/idempotency"
	"github.com/localli/booking/services/booking-service/internal/identity"
	"github.com/localli/booking/services/booking-service/internal/metrics"
	"github.com/localli/booking/services/booking-service/internal/model"
	"github.com/localli/booking/services/booking-service/internal/reservation"
	"github.com/localli/booking/services/booking-service/internal/storage"
	"github.com/localli/booking/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Name)

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("booking-service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serviceConfig, logger *slog.Logger) error {
	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Name))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var checks []runtime.ReadyCheck

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	var seed []model.Business
	if cfg.SeedFile != "" {
		if seed, err = business.LoadSeedFile(cfg.SeedFile); err != nil {
			return err
		}
	}

	var (
		ledger    storage.Ledger
		directory business.Directory
	)
	switch cfg.LedgerBackend {
	case "memory":
		memDir := business.NewMemoryDirectory(seed...)
		memLedger := storage.NewMemoryLedger(memDir, nil)
		directory, ledger = memDir, memLedger

		var writer outbox.MessageWriter
		if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
			w := kafkax.NewWriter(brokers)
			defer func() { _ = w.Close() }()
			writer = w
		}
		go outbox.NewBufferRelay(memLedger.Events(), writer, logger, time.Second).Run(ctx)
		logger.Warn("using in-memory ledger; appointments are lost on restart", "businesses", len(seed))

	default:
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if cfg.MigrateOnStart {
			applied, err := db.Migrate(ctx, pool, migrations.FS, ".", migrations.VersionTable)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", applied)
		}

		pgDir := business.NewPostgresDirectory(pool)
		for _, b := range seed {
			if err := pgDir.Upsert(ctx, b); err != nil {
				return err
			}
		}
		directory = pgDir

		outboxRepo := outbox.NewRepository()
		ledger = storage.NewPostgresLedger(pool, outboxRepo)
		go outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		}).Run(ctx)
	}

	if rdb != nil {
		directory = business.NewCachedDirectory(directory, rdb, cfg.BusinessTTL, logger)
	}

	m := metrics.New()
	svc := reservation.NewService(ledger, directory, reservation.WithRecorder(m))

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCache)
	}
	resolver := identity.NewResolver(identity.Config{
		JWTSecret:           cfg.JWTSecret,
		JWKS:                jwks,
		TrustGatewayHeaders: cfg.TrustGatewayHeaders,
	})

	var bookMiddleware []httpx.Middleware
	if rdb != nil {
		store := idempotency.NewStore(rdb, cfg.IdempotencyTTL)
		bookMiddleware = append(bookMiddleware, idempotency.Middleware(store, func(r *http.Request) string {
			actor, _ := identity.FromContext(r.Context())
			return actor.UserID
		}, logger))
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", m.Handler())
	handlers.NewAppointmentHandler(svc, logger).Register(mux, bookMiddleware...)

	httpHandler := httpx.Chain(m.Middleware(mux),
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader, idempotency.HeaderKey},
			MaxAge:         10 * time.Minute,
		}),
		rateLimitMiddleware(cfg, rdb, logger),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
		resolver.Middleware,
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpHandler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.GRPCPort != "" {
		grpcSrv := grpcx.NewServer()
		grpcx.RegisterHealth(grpcSrv, cfg.Name)
		go func() {
			if err := grpcx.Serve(ctx, ":"+cfg.GRPCPort, grpcSrv, logger); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
	}

	return runtime.ServeHTTP(ctx, srv, logger, "ledger", cfg.LedgerBackend, "ready_checks", runtime.CheckNames(checks))
}

func rateLimitMiddleware(cfg serviceConfig, rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	if cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "booking:ratelimit").Middleware(logger, cfg.RateLimitFailOpen)
	}
	return httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
}
