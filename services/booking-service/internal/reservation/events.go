package reservation

import (
	"time"

	"github.com/localli/booking/libs/outbox"
	"github.com/localli/booking/services/booking-service/internal/availability"
	"github.com/localli/booking/services/booking-service/internal/model"
)

const (
	TopicAppointmentBooked      = "booking.appointment.booked.v1"
	TopicAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	TopicAppointmentCancelled   = "booking.appointment.cancelled.v1"
	TopicAppointmentConfirmed   = "booking.appointment.confirmed.v1"

	aggregateAppointment = "appointment"
	wallClockLayout      = "2006-01-02T15:04:05"
)

// AppointmentEvent is the payload of every appointment topic.
// StartDateTime is business-local wall clock; Timezone names the zone it is in.
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

func appointmentPayload(appt model.Appointment, biz model.Business, w availability.Window, occurredAt time.Time) AppointmentEvent {
	return AppointmentEvent{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		CustomerID:    appt.CustomerID,
		Date:          appt.Date,
		Slot:          appt.Slot,
		StartDateTime: w.Start.Format(wallClockLayout),
		EndDateTime:   w.End.Format(wallClockLayout),
		Timezone:      biz.Location(),
		OccurredAt:    occurredAt.UTC(),
	}
}

func (p AppointmentEvent) toOutbox(topic string) (outbox.Event, error) {
	return outbox.NewEvent(aggregateAppointment, p.AppointmentID, topic, p)
}
