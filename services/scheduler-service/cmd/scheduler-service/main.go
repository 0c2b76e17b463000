package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/localli/booking/libs/config"
	"github.com/localli/booking/libs/db"
	"github.com/localli/booking/libs/httpx"
	"github.com/localli/booking/libs/kafkax"
	otelx "github.com/localli/booking/libs/otel"
	"github.com/localli/booking/libs/outbox"
	"github.com/localli/booking/libs/runtime"
	"github.com/localli/booking/services/scheduler-service/internal/consumer"
	"github.com/localli/booking/services/scheduler-service/internal/inbox"
	"github.com/localli/booking/services/scheduler-service/internal/jobs"
	"github.com/localli/booking/services/scheduler-service/internal/reminder"
	"github.com/localli/booking/services/scheduler-service/migrations"
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
		logger.Error("scheduler-service stopped with error", "err", err)
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

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		n, err := db.Migrate(ctx, pool, migrations.FS, ".", migrations.VersionTable)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "count", n)
	}

	jobRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository()

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	worker := jobs.NewWorker(pool, jobRepo, outboxRepo, logger, jobs.WorkerConfig{
		Interval:  2 * time.Second,
		BatchSize: 50,
		Backoff:   cfg.Backoff,
	})
	go worker.Run(ctx)

	handler := reminder.NewHandler(jobRepo, reminder.NewStaticPolicy(cfg.Offsets), cfg.Channels, logger)
	reader := consumer.NewReader(consumer.Config{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.GroupID,
		Topics:  cfg.Topics,
	})
	eventConsumer := consumer.New(logger, reader, pool, inbox.NewRepository(), handler.Handle, consumer.RetryConfig{
		MaxAttempts: 5,
		Backoff:     time.Second,
	})
	go eventConsumer.Run(ctx)
	logger.Info("consuming appointment events", "topics", cfg.Topics, "group", cfg.GroupID)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	)
	h := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(h, "scheduler"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return runtime.ServeHTTP(ctx, srv, logger)
}
