package reminder

import (
	"fmt"
	"time"

	"github.com/localli/booking/services/scheduler-service/internal/jobs"
)

const (
	TopicAppointmentBooked      = "booking.appointment.booked.v1"
	TopicAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	TopicAppointmentCancelled   = "booking.appointment.cancelled.v1"

	wallClockLayout = "2006-01-02T15:04:05"
)

// DefaultTopics are the appointment topics the scheduler reacts to.
var DefaultTopics = []string{
	TopicAppointmentBooked,
	TopicAppointmentRescheduled,
	TopicAppointmentCancelled,
}

// AppointmentEvent is the booking-service appointment payload.
type AppointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	BusinessID    string    `json:"business_id"`
	CustomerID    string    `json:"customer_id"`
	Date          string    `json:"date"`
	Slot          string    `json:"slot"`
	StartDateTime string    `json:"start_date_time"`
	EndDateTime   string    `json:"end_date_time"`
	Timezone      string    `json:"timezone"`
	PreviousDate  string    `json:"previous_date,omitempty"`
	PreviousSlot  string    `json:"previous_slot,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StartInstant resolves the business-local wall clock start into an instant.
// An empty timezone means UTC.
func (e AppointmentEvent) StartInstant() (time.Time, error) {
	loc := time.UTC
	if e.Timezone != "" {
		l, err := time.LoadLocation(e.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown timezone %q: %w", e.Timezone, err)
		}
		loc = l
	}
	start, err := time.ParseInLocation(wallClockLayout, e.StartDateTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_date_time %q: %w", e.StartDateTime, err)
	}
	return start, nil
}

// Plan builds one job per offset and channel. Reminders whose time is not
// after now are skipped.
func Plan(evt AppointmentEvent, offsets []time.Duration, channels []string, now time.Time) ([]jobs.Job, error) {
	start, err := evt.StartInstant()
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"date":            evt.Date,
		"slot":            evt.Slot,
		"timezone":        evt.Timezone,
		"start_date_time": evt.StartDateTime,
	}

	var out []jobs.Job
	for _, off := range offsets {
		remindAt := start.Add(-off).UTC()
		if !remindAt.After(now) {
			continue
		}
		for _, ch := range channels {
			out = append(out, jobs.Job{
				IdempotencyKey: jobs.Key(evt.AppointmentID, remindAt, ch),
				AppointmentID:  evt.AppointmentID,
				BusinessID:     evt.BusinessID,
				CustomerID:     evt.CustomerID,
				Channel:        ch,
				StartsAt:       start.UTC(),
				RemindAt:       remindAt,
				TemplateData:   data,
			})
		}
	}
	return out, nil
}
