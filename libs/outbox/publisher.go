package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/localli/booking/libs/db"
	"github.com/localli/booking/libs/kafkax"
	otelx "github.com/localli/booking/libs/otel"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := kafkax.NewWriter(p.brokers)
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.publishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox events published", "count", n)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, ToMessage(ctx, r))
		ids = append(ids, r.ID)
	}
	// Rows stay locked until commit; a failed write leaves them unpublished for the next tick.
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}

// ToMessage converts an outbox record into a Kafka message carrying the
// record's original trace context.
func ToMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.TraceContext{Parent: r.Traceparent, State: r.Tracestate}.Attach(ctx)
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, kafkax.Headers(r.EventID, r.EventType)),
	}
}
