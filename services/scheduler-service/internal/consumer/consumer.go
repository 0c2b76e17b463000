package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/localli/booking/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one message inside the inbox transaction.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type Inbox interface {
	Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error)
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

// NewReader builds a consumer-group reader over every configured topic.
// Offsets are committed explicitly after a message is handled.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	reader      Reader
	db          TxRunner
	inbox       Inbox
	handler     Handler
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

func New(logger *slog.Logger, reader Reader, db TxRunner, inboxRepo Inbox, handler Handler, retry RetryConfig) *Consumer {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 5
	}
	if retry.Backoff <= 0 {
		retry.Backoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		db:          db,
		inbox:       inboxRepo,
		handler:     handler,
		logger:      logger,
		maxAttempts: retry.MaxAttempts,
		backoff:     retry.Backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process retries a failing message with a fixed backoff. After the last
// attempt the message is logged and skipped. It returns false only when ctx
// ends first, leaving the offset uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	meta := kafkax.ExtractEventMeta(msg)
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg, meta)
		if err == nil {
			return true
		}
		if attempt >= c.maxAttempts {
			c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "attempts", attempt)
			return true
		}
		c.logger.Warn("event handling failed, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if !sleep(ctx, c.backoff) {
			return false
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", meta.EventID),
		),
	)
	defer span.End()

	err := c.db.InTx(ctxSpan, func(tx pgx.Tx) error {
		fresh, err := c.inbox.Record(ctxSpan, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		return c.handler(ctxSpan, tx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
