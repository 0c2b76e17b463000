package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/localli/booking/libs/outbox"
	"github.com/localli/booking/services/booking-service/internal/model"
)

// OwnerIndex resolves the businesses owned by a user.
type OwnerIndex interface {
	ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
}

type slotKey struct {
	businessID string
	date       string
	slot       string
}

// MemoryLedger keeps appointments in process memory. A single mutex makes
// every check-and-write atomic.
type MemoryLedger struct {
	mu     sync.Mutex
	byID   map[string]model.Appointment
	active map[slotKey]string
	owners OwnerIndex
	events *outbox.Buffer
	now    func() time.Time
}

func NewMemoryLedger(owners OwnerIndex, events *outbox.Buffer) *MemoryLedger {
	if events == nil {
		events = outbox.NewBuffer()
	}
	return &MemoryLedger{
		byID:   map[string]model.Appointment{},
		active: map[slotKey]string{},
		owners: owners,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLedger) Events() *outbox.Buffer {
	return l.events
}

func (l *MemoryLedger) Create(_ context.Context, appt model.Appointment, events ...outbox.Event) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[appt.ID]; exists {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s already exists", model.ErrConflict, appt.ID)
	}
	key := slotKey{appt.BusinessID, appt.Date, appt.Slot}
	if _, taken := l.active[key]; taken {
		return model.Appointment{}, fmt.Errorf("%w: slot already booked", model.ErrConflict)
	}

	now := l.now()
	appt.Status = model.StatusBooked
	appt.CreatedAt = now
	appt.UpdatedAt = now
	appt.CancelledAt = nil
	l.byID[appt.ID] = appt
	l.active[key] = appt.ID
	l.events.Append(events...)
	return appt, nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, ok := l.byID[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	}
	return appt, nil
}

func (l *MemoryLedger) Reschedule(_ context.Context, id, newDate, newSlot string, events ...outbox.Event) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, err := l.activeLocked(id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.SameSlot(appt.BusinessID, newDate, newSlot) {
		return appt, nil
	}
	dest := slotKey{appt.BusinessID, newDate, newSlot}
	if holder, taken := l.active[dest]; taken && holder != id {
		return model.Appointment{}, fmt.Errorf("%w: slot already booked", model.ErrConflict)
	}

	delete(l.active, slotKey{appt.BusinessID, appt.Date, appt.Slot})
	appt.Date = newDate
	appt.Slot = newSlot
	appt.Confirmed = false
	appt.UpdatedAt = l.now()
	l.byID[id] = appt
	l.active[dest] = id
	l.events.Append(events...)
	return appt, nil
}

func (l *MemoryLedger) Cancel(_ context.Context, id string, events ...outbox.Event) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, ok := l.byID[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	}
	if !appt.Active() {
		return appt, nil
	}

	now := l.now()
	delete(l.active, slotKey{appt.BusinessID, appt.Date, appt.Slot})
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &now
	appt.UpdatedAt = now
	l.byID[id] = appt
	l.events.Append(events...)
	return appt, nil
}

func (l *MemoryLedger) Confirm(_ context.Context, id string, events ...outbox.Event) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, err := l.activeLocked(id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Confirmed {
		return appt, nil
	}
	appt.Confirmed = true
	appt.UpdatedAt = l.now()
	l.byID[id] = appt
	l.events.Append(events...)
	return appt, nil
}

func (l *MemoryLedger) BookedSlots(_ context.Context, businessID, date string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var slots []string
	for key := range l.active {
		if key.businessID == businessID && key.date == date {
			slots = append(slots, key.slot)
		}
	}
	sort.Strings(slots)
	return slots, nil
}

func (l *MemoryLedger) ListForCustomer(_ context.Context, customerID string) ([]model.Appointment, error) {
	return l.filter(func(a model.Appointment) bool { return a.CustomerID == customerID }), nil
}

func (l *MemoryLedger) ListForBusiness(_ context.Context, businessID string) ([]model.Appointment, error) {
	return l.filter(func(a model.Appointment) bool { return a.BusinessID == businessID }), nil
}

func (l *MemoryLedger) ListForOwner(ctx context.Context, ownerID string) ([]model.Appointment, error) {
	if l.owners == nil {
		return nil, nil
	}
	ids, err := l.owners.ListIDsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		owned[id] = struct{}{}
	}
	return l.filter(func(a model.Appointment) bool {
		_, ok := owned[a.BusinessID]
		return ok
	}), nil
}

func (l *MemoryLedger) filter(keep func(model.Appointment) bool) []model.Appointment {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Appointment
	for _, appt := range l.byID {
		if keep(appt) {
			out = append(out, appt)
		}
	}
	sortAppointments(out)
	return out
}

// activeLocked returns a non-cancelled appointment. Callers hold l.mu.
func (l *MemoryLedger) activeLocked(id string) (model.Appointment, error) {
	appt, ok := l.byID[id]
	if !ok || !appt.Active() {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	}
	return appt, nil
}
