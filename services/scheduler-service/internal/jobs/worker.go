package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/localli/booking/libs/db"
	otelx "github.com/localli/booking/libs/otel"
	"github.com/localli/booking/libs/outbox"
)

const (
	TopicReminderDue = "scheduler.reminder.due.v1"
	TopicReminderDLQ = "scheduler.reminder.dlq.v1"

	aggregateJob = "reminder_job"
)

// ReminderDue is the payload of the due and dead-letter topics.
type ReminderDue struct {
	AppointmentID string         `json:"appointment_id"`
	BusinessID    string         `json:"business_id"`
	CustomerID    string         `json:"customer_id"`
	Channel       string         `json:"channel"`
	StartsAt      string         `json:"starts_at"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
	ErrorReason   string         `json:"error_reason,omitempty"`
	FailedAt      string         `json:"failed_at,omitempty"`
}

func dueEvent(job Job) (outbox.Event, error) {
	return outbox.NewEvent(aggregateJob, job.AppointmentID, TopicReminderDue, duePayload(job))
}

func dlqEvent(job Job, reason string, failedAt time.Time) (outbox.Event, error) {
	p := duePayload(job)
	p.ErrorReason = reason
	p.FailedAt = failedAt.UTC().Format(time.RFC3339)
	return outbox.NewEvent(aggregateJob, job.AppointmentID, TopicReminderDLQ, p)
}

func duePayload(job Job) ReminderDue {
	data := job.TemplateData
	if data == nil {
		data = map[string]any{}
	}
	return ReminderDue{
		AppointmentID: job.AppointmentID,
		BusinessID:    job.BusinessID,
		CustomerID:    job.CustomerID,
		Channel:       job.Channel,
		StartsAt:      job.StartsAt.UTC().Format(time.RFC3339),
		RemindAt:      job.RemindAt.UTC().Format(time.RFC3339),
		TemplateData:  data,
	}
}

// Worker moves due jobs into the outbox.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Minute
	}
	return c
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	return w.pool.InTx(ctx, func(tx pgx.Tx) error {
		jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
		if err != nil || len(jobs) == 0 {
			return err
		}

		var done []int64
		for _, job := range jobs {
			jobCtx := otelx.TraceContext{Parent: job.Traceparent, State: job.Tracestate}.Attach(ctx)
			if err := w.enqueue(jobCtx, tx, job); err != nil {
				w.logger.Warn("reminder enqueue failed", "err", err, "job_id", job.ID, "appointment_id", job.AppointmentID)
				if err := w.fail(jobCtx, tx, job, err.Error()); err != nil {
					return err
				}
				continue
			}
			done = append(done, job.ID)
		}
		if len(done) > 0 {
			w.logger.Info("reminders due", "count", len(done))
		}
		return w.repo.MarkProcessed(ctx, tx, done)
	})
}

// enqueue writes the due event under a savepoint so one bad job does not
// abort the batch transaction.
func (w *Worker) enqueue(ctx context.Context, tx pgx.Tx, job Job) error {
	evt, err := dueEvent(job)
	if err != nil {
		return err
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := w.outbox.Insert(ctx, sp, evt); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (w *Worker) fail(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	now := time.Now().UTC()
	attempts := job.Attempts + 1
	if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, now.Add(w.backoff), reason); err != nil {
		return err
	}
	if attempts < job.MaxAttempts {
		return nil
	}
	evt, err := dlqEvent(job, "max attempts reached: "+reason, now)
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, evt)
}
