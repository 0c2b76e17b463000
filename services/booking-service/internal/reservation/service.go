package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localli/booking/libs/outbox"
	"github.com/localli/booking/services/booking-service/internal/availability"
	"github.com/localli/booking/services/booking-service/internal/model"
	"github.com/localli/booking/services/booking-service/internal/storage"
)

// Recorder observes operation outcomes. A nil Recorder is allowed.
type Recorder interface {
	Observe(operation string, err error)
}

type BookRequest struct {
	BusinessID string `json:"businessId"`
	Date       string `json:"date"`
	Slot       string `json:"slot"`
}

type RescheduleRequest struct {
	NewDate string `json:"newDate"`
	NewSlot string `json:"newSlot"`
}

// Service applies authorization and schedule validation around the Ledger.
// It never retries: a conflict means the caller's view of availability is stale.
type Service struct {
	ledger     storage.Ledger
	businesses availability.BusinessLookup
	resolver   *availability.Resolver
	recorder   Recorder
	newID      func() string
	now        func() time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(ledger storage.Ledger, businesses availability.BusinessLookup, opts ...Option) *Service {
	s := &Service{
		ledger:     ledger,
		businesses: businesses,
		resolver:   availability.NewResolver(businesses, ledger),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Availability returns the slot board for a business on date.
func (s *Service) Availability(ctx context.Context, businessID, date string) ([]availability.SlotAvailability, error) {
	return s.resolver.GetAvailability(ctx, strings.TrimSpace(businessID), strings.TrimSpace(date))
}

func (s *Service) Book(ctx context.Context, actor model.Actor, req BookRequest) (appt model.Appointment, err error) {
	defer func() { s.observe("book", err) }()

	if err := requireAuthenticated(actor); err != nil {
		return model.Appointment{}, err
	}
	if actor.Role != model.RoleCustomer {
		return model.Appointment{}, fmt.Errorf("%w: only customers can book appointments", model.ErrForbidden)
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Date = strings.TrimSpace(req.Date)
	req.Slot = strings.TrimSpace(req.Slot)
	if req.BusinessID == "" || req.Date == "" || req.Slot == "" {
		return model.Appointment{}, fmt.Errorf("%w: businessId, date and slot are required", model.ErrValidation)
	}

	biz, window, err := s.resolver.ValidateSlot(ctx, req.BusinessID, req.Date, req.Slot)
	if err != nil {
		return model.Appointment{}, err
	}

	appt = model.Appointment{
		ID:         s.newID(),
		BusinessID: biz.ID,
		CustomerID: actor.UserID,
		Date:       req.Date,
		Slot:       req.Slot,
		Status:     model.StatusBooked,
	}
	evt, err := appointmentPayload(appt, biz, window, s.now()).toOutbox(TopicAppointmentBooked)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.ledger.Create(ctx, appt, evt)
}

func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id string, req RescheduleRequest) (appt model.Appointment, err error) {
	defer func() { s.observe("reschedule", err) }()

	if err := requireAuthenticated(actor); err != nil {
		return model.Appointment{}, err
	}
	req.NewDate = strings.TrimSpace(req.NewDate)
	req.NewSlot = strings.TrimSpace(req.NewSlot)
	if req.NewDate == "" || req.NewSlot == "" {
		return model.Appointment{}, fmt.Errorf("%w: newDate and newSlot are required", model.ErrValidation)
	}

	current, biz, err := s.loadActive(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanModify(current, biz, actor) {
		return model.Appointment{}, fmt.Errorf("%w: not allowed to reschedule this appointment", model.ErrForbidden)
	}
	_, window, err := s.resolver.ValidateSlot(ctx, biz.ID, req.NewDate, req.NewSlot)
	if err != nil {
		return model.Appointment{}, err
	}

	moved := current
	moved.Date, moved.Slot = req.NewDate, req.NewSlot
	payload := appointmentPayload(moved, biz, window, s.now())
	payload.PreviousDate, payload.PreviousSlot = current.Date, current.Slot
	evt, err := payload.toOutbox(TopicAppointmentRescheduled)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.ledger.Reschedule(ctx, current.ID, req.NewDate, req.NewSlot, evt)
}

// Cancel soft-deletes the appointment. Cancelling an already cancelled
// appointment returns it unchanged.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id string) (appt model.Appointment, err error) {
	defer func() { s.observe("cancel", err) }()

	if err := requireAuthenticated(actor); err != nil {
		return model.Appointment{}, err
	}
	current, err := s.ledger.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	biz, err := s.businesses.Get(ctx, current.BusinessID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanModify(current, biz, actor) {
		return model.Appointment{}, fmt.Errorf("%w: not allowed to cancel this appointment", model.ErrForbidden)
	}
	if !current.Active() {
		return current, nil
	}

	evt, err := s.eventFor(TopicAppointmentCancelled, current, biz)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.ledger.Cancel(ctx, current.ID, evt)
}

func (s *Service) Confirm(ctx context.Context, actor model.Actor, id string) (appt model.Appointment, err error) {
	defer func() { s.observe("confirm", err) }()

	if err := requireAuthenticated(actor); err != nil {
		return model.Appointment{}, err
	}
	current, biz, err := s.loadActive(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !IsBusinessOwner(biz, actor) {
		return model.Appointment{}, fmt.Errorf("%w: only the business owner can confirm", model.ErrForbidden)
	}
	evt, err := s.eventFor(TopicAppointmentConfirmed, current, biz)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.ledger.Confirm(ctx, current.ID, evt)
}

func (s *Service) ListMine(ctx context.Context, actor model.Actor) ([]model.Appointment, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	return s.ledger.ListForCustomer(ctx, actor.UserID)
}

func (s *Service) ListForBusiness(ctx context.Context, actor model.Actor, businessID string) ([]model.Appointment, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	biz, err := s.businesses.Get(ctx, strings.TrimSpace(businessID))
	if err != nil {
		return nil, err
	}
	if !IsBusinessOwner(biz, actor) && actor.Role != model.RoleAdmin {
		return nil, fmt.Errorf("%w: only the business owner or an admin can list its appointments", model.ErrForbidden)
	}
	return s.ledger.ListForBusiness(ctx, biz.ID)
}

// ListForOwner aggregates the caller's own businesses, so admins who own
// nothing use ListForBusiness instead.
func (s *Service) ListForOwner(ctx context.Context, actor model.Actor) ([]model.Appointment, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if actor.Role != model.RoleOwner {
		return nil, fmt.Errorf("%w: only business owners have an owner view", model.ErrForbidden)
	}
	return s.ledger.ListForOwner(ctx, actor.UserID)
}

// CanModify reports whether actor may reschedule or cancel appt: the
// customer who booked it, or the owner of its business.
func CanModify(appt model.Appointment, biz model.Business, actor model.Actor) bool {
	if !actor.Authenticated() {
		return false
	}
	return appt.CustomerID == actor.UserID || IsBusinessOwner(biz, actor)
}

func IsBusinessOwner(biz model.Business, actor model.Actor) bool {
	return actor.Authenticated() && biz.OwnerID != "" && biz.OwnerID == actor.UserID
}

func (s *Service) loadActive(ctx context.Context, id string) (model.Appointment, model.Business, error) {
	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, model.Business{}, err
	}
	if !appt.Active() {
		return model.Appointment{}, model.Business{}, fmt.Errorf("%w: appointment %s is cancelled", model.ErrNotFound, id)
	}
	biz, err := s.businesses.Get(ctx, appt.BusinessID)
	if err != nil {
		return model.Appointment{}, model.Business{}, err
	}
	return appt, biz, nil
}

func (s *Service) eventFor(topic string, appt model.Appointment, biz model.Business) (outbox.Event, error) {
	window, err := availability.WindowOf(appt.Date, appt.Slot)
	if err != nil {
		return outbox.Event{}, err
	}
	return appointmentPayload(appt, biz, window, s.now()).toOutbox(topic)
}

func (s *Service) observe(operation string, err error) {
	if s.recorder != nil {
		s.recorder.Observe(operation, err)
	}
}

func requireAuthenticated(actor model.Actor) error {
	if !actor.Authenticated() {
		return fmt.Errorf("%w: missing caller identity", model.ErrUnauthenticated)
	}
	return nil
}
