package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/localli/booking/services/scheduler-service/internal/jobs"
	"github.com/segmentio/kafka-go"
)

// JobStore is the part of jobs.Repository the handler writes through.
type JobStore interface {
	Advance(ctx context.Context, tx pgx.Tx, appointmentID string, occurredAt time.Time, cancelled bool) (bool, error)
	Insert(ctx context.Context, tx pgx.Tx, job jobs.Job) error
	CancelPending(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error)
}

// Handler keeps reminder jobs in step with appointment events.
type Handler struct {
	store    JobStore
	policy   Policy
	channels []string
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(store JobStore, policy Policy, channels []string, logger *slog.Logger) *Handler {
	if len(channels) == 0 {
		channels = []string{"email"}
	}
	return &Handler{
		store:    store,
		policy:   policy,
		channels: channels,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle applies one message inside tx. Undecodable messages are logged and
// acknowledged; storage errors are returned so the consumer retries.
func (h *Handler) Handle(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	var evt AppointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("invalid appointment event", "err", err, "topic", msg.Topic)
		return nil
	}
	if evt.AppointmentID == "" {
		h.logger.Error("appointment event without appointment_id", "topic", msg.Topic)
		return nil
	}

	switch msg.Topic {
	case TopicAppointmentBooked, TopicAppointmentRescheduled, TopicAppointmentCancelled:
	default:
		h.logger.Debug("ignoring topic", "topic", msg.Topic)
		return nil
	}

	// Topics are consumed independently, so a cancellation can overtake the
	// booking it cancels.
	apply, err := h.store.Advance(ctx, tx, evt.AppointmentID, evt.OccurredAt, msg.Topic == TopicAppointmentCancelled)
	if err != nil {
		return err
	}
	if !apply {
		h.logger.Info("skipping stale appointment event", "appointment_id", evt.AppointmentID, "topic", msg.Topic, "occurred_at", evt.OccurredAt)
		return nil
	}

	switch msg.Topic {
	case TopicAppointmentBooked:
		return h.schedule(ctx, tx, evt)
	case TopicAppointmentRescheduled:
		if err := h.cancel(ctx, tx, evt); err != nil {
			return err
		}
		return h.schedule(ctx, tx, evt)
	default:
		return h.cancel(ctx, tx, evt)
	}
}

func (h *Handler) schedule(ctx context.Context, tx pgx.Tx, evt AppointmentEvent) error {
	offsets, err := h.policy.ReminderOffsets(ctx, evt.BusinessID)
	if err != nil {
		return err
	}
	planned, err := Plan(evt, offsets, h.channels, h.now().UTC())
	if err != nil {
		h.logger.Error("cannot plan reminders", "err", err, "appointment_id", evt.AppointmentID)
		return nil
	}
	for _, job := range planned {
		if err := h.store.Insert(ctx, tx, job); err != nil {
			return err
		}
	}
	h.logger.Info("reminders scheduled", "appointment_id", evt.AppointmentID, "count", len(planned))
	return nil
}

func (h *Handler) cancel(ctx context.Context, tx pgx.Tx, evt AppointmentEvent) error {
	n, err := h.store.CancelPending(ctx, tx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if n > 0 {
		h.logger.Info("reminders cancelled", "appointment_id", evt.AppointmentID, "count", n)
	}
	return nil
}
