package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/localli/booking/libs/auth"
	"github.com/localli/booking/libs/config"
	"github.com/localli/booking/libs/grpcx"
	"github.com/localli/booking/libs/httpx"
	otelx "github.com/localli/booking/libs/otel"
	"github.com/localli/booking/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("gateway-service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	bookingURL, err := url.Parse(config.String("BOOKING_URL", "http://booking-service:8083"))
	if err != nil {
		return err
	}
	v := verifier{secret: config.String("JWT_SECRET", "")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		v.keys = auth.NewJWKSClient(jwksURL, config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute))
	}
	if v.secret == "" && v.keys == nil {
		return errors.New("one of JWT_SECRET or JWKS_URL must be set")
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
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
	if addr := config.String("BOOKING_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
		if err != nil {
			logger.Warn("booking grpc health unavailable, readiness will skip it", "err", err, "addr", addr)
		} else {
			defer func() { _ = conn.Close() }()
			checks = append(checks, runtime.ReadyCheck{Name: "booking", Check: grpcx.HealthCheck(conn, config.String("BOOKING_GRPC_SERVICE", "booking-service"))})
		}
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, bookingURL, v)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60, 1)
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0, 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "gateway:ratelimit"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second)),
		rateLimitMW,
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "gateway"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return runtime.ServeHTTP(ctx, srv, logger, "booking_url", bookingURL.String())
}
