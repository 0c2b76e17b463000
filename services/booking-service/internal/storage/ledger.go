package storage

import (
	"context"
	"sort"

	"github.com/localli/booking/libs/outbox"
	"github.com/localli/booking/services/booking-service/internal/model"
)

// Ledger persists appointments and owns the (business, date, slot)
// uniqueness of active appointments. Events passed to a write are stored
// atomically with it, and only when the write changes state.
type Ledger interface {
	Create(ctx context.Context, appt model.Appointment, events ...outbox.Event) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	Reschedule(ctx context.Context, id, newDate, newSlot string, events ...outbox.Event) (model.Appointment, error)
	Cancel(ctx context.Context, id string, events ...outbox.Event) (model.Appointment, error)
	Confirm(ctx context.Context, id string, events ...outbox.Event) (model.Appointment, error)
	BookedSlots(ctx context.Context, businessID, date string) ([]string, error)
	ListForCustomer(ctx context.Context, customerID string) ([]model.Appointment, error)
	ListForBusiness(ctx context.Context, businessID string) ([]model.Appointment, error)
	ListForOwner(ctx context.Context, ownerID string) ([]model.Appointment, error)
}

// sortAppointments orders by date then slot; canonical labels sort
// chronologically as strings. Creation time breaks ties between a cancelled
// appointment and a later one in the same slot.
func sortAppointments(appts []model.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
