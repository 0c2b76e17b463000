package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/localli/booking/services/booking-service/internal/business"
	"github.com/localli/booking/services/booking-service/internal/model"
	"github.com/localli/booking/services/booking-service/internal/storage"
)

var (
	customerA = model.Actor{UserID: "cust-a", Role: model.RoleCustomer}
	customerB = model.Actor{UserID: "cust-b", Role: model.RoleCustomer}
	owner     = model.Actor{UserID: "owner-1", Role: model.RoleOwner}
	stranger  = model.Actor{UserID: "owner-2", Role: model.RoleOwner}
	admin     = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}
)

type fixture struct {
	svc    *Service
	ledger *storage.MemoryLedger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := business.NewMemoryDirectory(
		model.Business{ID: "biz-x", OwnerID: "owner-1", Hours: &model.Hours{Open: "11:00", Close: "14:00"}, SlotMinutes: 60, Timezone: "Europe/Berlin"},
		model.Business{ID: "biz-y", OwnerID: "owner-1", Hours: &model.Hours{Open: "09:00", Close: "10:00"}, SlotMinutes: 30},
		model.Business{ID: "biz-broken", OwnerID: "owner-2"},
	)
	ledger := storage.NewMemoryLedger(dir, nil)
	clock := func() time.Time { return time.Date(2024, 4, 20, 8, 0, 0, 0, time.UTC) }
	return fixture{svc: NewService(ledger, dir, WithClock(clock)), ledger: ledger}
}

func (f fixture) book(t *testing.T, actor model.Actor, slot string) model.Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), actor, BookRequest{BusinessID: "biz-x", Date: "2024-05-01", Slot: slot})
	if err != nil {
		t.Fatalf("Book %s: %v", slot, err)
	}
	return appt
}

func TestBook_EmitsBookedEvent(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, customerA, "11:00-12:00")
	if appt.ID == "" || appt.CustomerID != "cust-a" || appt.Status != model.StatusBooked || appt.Confirmed {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	events := f.ledger.Events().Drain()
	if len(events) != 1 || events[0].EventType != TopicAppointmentBooked {
		t.Fatalf("expected one booked event, got %+v", events)
	}
	var payload AppointmentEvent
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.AppointmentID != appt.ID || payload.StartDateTime != "2024-05-01T11:00:00" || payload.Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor model.Actor
		req   BookRequest
		want  error
	}{
		{"anonymous", model.Actor{}, BookRequest{BusinessID: "biz-x", Date: "2024-05-01", Slot: "11:00-12:00"}, model.ErrUnauthenticated},
		{"owner cannot book", owner, BookRequest{BusinessID: "biz-x", Date: "2024-05-01", Slot: "11:00-12:00"}, model.ErrForbidden},
		{"missing slot", customerA, BookRequest{BusinessID: "biz-x", Date: "2024-05-01"}, model.ErrValidation},
		{"bad date", customerA, BookRequest{BusinessID: "biz-x", Date: "1 May", Slot: "11:00-12:00"}, model.ErrValidation},
		{"slot not offered", customerA, BookRequest{BusinessID: "biz-x", Date: "2024-05-01", Slot: "11:30-12:30"}, model.ErrValidation},
		{"unknown business", customerA, BookRequest{BusinessID: "nope", Date: "2024-05-01", Slot: "11:00-12:00"}, model.ErrNotFound},
		{"no hours", customerA, BookRequest{BusinessID: "biz-broken", Date: "2024-05-01", Slot: "11:00-12:00"}, model.ErrConfiguration},
	}
	for _, tc := range cases {
		if _, err := f.svc.Book(ctx, tc.actor, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if n := f.ledger.Events().Len(); n != 0 {
		t.Fatalf("expected no events from rejected bookings, got %d", n)
	}
}

func TestBook_ConcurrentRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := model.Actor{UserID: "cust-" + string(rune('a'+i)), Role: model.RoleCustomer}
			_, err := f.svc.Book(ctx, actor, BookRequest{BusinessID: "biz-x", Date: "2024-05-01", Slot: "11:00-12:00"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, model.ErrConflict):
			t.Fatalf("expected ErrConflict for losers, got %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if n := f.ledger.Events().Len(); n != 1 {
		t.Fatalf("expected one booked event, got %d", n)
	}
}

func TestAvailabilityReflectsBookings(t *testing.T) {
	f := newFixture(t)
	f.book(t, customerA, "12:00-13:00")

	slots, err := f.svc.Availability(context.Background(), "biz-x", "2024-05-01")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(slots) != 3 || !slots[0].Available || slots[1].Available || !slots[2].Available {
		t.Fatalf("unexpected availability %+v", slots)
	}
}

func TestReschedule_ConflictKeepsOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, customerA, "11:00-12:00")
	f.book(t, customerB, "12:00-13:00")
	f.ledger.Events().Drain()

	_, err := f.svc.Reschedule(ctx, customerA, a.ID, RescheduleRequest{NewDate: "2024-05-01", NewSlot: "12:00-13:00"})
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := f.ledger.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Slot != "11:00-12:00" || got.Date != "2024-05-01" {
		t.Fatalf("original appointment moved to %s %s", got.Date, got.Slot)
	}
	if n := f.ledger.Events().Len(); n != 0 {
		t.Fatalf("expected no event after failed reschedule, got %d", n)
	}
}

func TestReschedule_ByOwnerResetsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, customerA, "11:00-12:00")
	if _, err := f.svc.Confirm(ctx, owner, a.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	f.ledger.Events().Drain()

	moved, err := f.svc.Reschedule(ctx, owner, a.ID, RescheduleRequest{NewDate: "2024-05-02", NewSlot: "13:00-14:00"})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.Confirmed || moved.Slot != "13:00-14:00" {
		t.Fatalf("unexpected appointment after reschedule %+v", moved)
	}

	events := f.ledger.Events().Drain()
	if len(events) != 1 || events[0].EventType != TopicAppointmentRescheduled {
		t.Fatalf("expected one rescheduled event, got %+v", events)
	}
	var payload AppointmentEvent
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.PreviousSlot != "11:00-12:00" || payload.StartDateTime != "2024-05-02T13:00:00" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReschedule_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, customerA, "11:00-12:00")

	req := RescheduleRequest{NewDate: "2024-05-01", NewSlot: "13:00-14:00"}
	for _, actor := range []model.Actor{customerB, stranger} {
		if _, err := f.svc.Reschedule(ctx, actor, a.ID, req); !errors.Is(err, model.ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden, got %v", actor.UserID, err)
		}
	}
	if _, err := f.svc.Reschedule(ctx, customerA, "missing", req); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Reschedule(ctx, customerA, a.ID, RescheduleRequest{NewDate: "2024-05-01", NewSlot: "13:00-13:30"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCancel_IdempotentAndFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, customerA, "11:00-12:00")
	f.ledger.Events().Drain()

	if _, err := f.svc.Cancel(ctx, customerB, a.ID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	first, err := f.svc.Cancel(ctx, owner, a.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	second, err := f.svc.Cancel(ctx, customerA, a.ID)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if first.Status != model.StatusCancelled || second.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s / %s", first.Status, second.Status)
	}
	if events := f.ledger.Events().Drain(); len(events) != 1 || events[0].EventType != TopicAppointmentCancelled {
		t.Fatalf("expected one cancelled event, got %+v", events)
	}
	if _, err := f.svc.Cancel(ctx, customerA, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	f.book(t, customerB, "11:00-12:00")
	if _, err := f.svc.Confirm(ctx, owner, a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected cancelled appointment to stay cancelled, got %v", err)
	}
}

func TestConfirm_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, customerA, "11:00-12:00")

	for _, actor := range []model.Actor{customerA, stranger} {
		if _, err := f.svc.Confirm(ctx, actor, a.ID); !errors.Is(err, model.ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden, got %v", actor.UserID, err)
		}
	}
	got, err := f.svc.Confirm(ctx, owner, a.ID)
	if err != nil || !got.Confirmed {
		t.Fatalf("Confirm: %+v %v", got, err)
	}
}

func TestLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, customerA, "13:00-14:00")
	f.book(t, customerB, "11:00-12:00")
	if _, err := f.svc.Book(ctx, customerA, BookRequest{BusinessID: "biz-y", Date: "2024-04-30", Slot: "09:30-10:00"}); err != nil {
		t.Fatalf("Book biz-y: %v", err)
	}

	mine, err := f.svc.ListMine(ctx, customerA)
	if err != nil || len(mine) != 2 || mine[0].BusinessID != "biz-y" {
		t.Fatalf("ListMine: %+v %v", mine, err)
	}
	all, err := f.svc.ListForOwner(ctx, owner)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListForOwner: %+v %v", all, err)
	}
	biz, err := f.svc.ListForBusiness(ctx, owner, "biz-x")
	if err != nil || len(biz) != 2 || biz[0].Slot != "11:00-12:00" {
		t.Fatalf("ListForBusiness: %+v %v", biz, err)
	}

	if _, err := f.svc.ListForBusiness(ctx, stranger, "biz-x"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.ListForOwner(ctx, customerA); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.ListMine(ctx, model.Actor{}); !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestLists_AdminSeesAnyBusiness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, customerA, "12:00-13:00")

	got, err := f.svc.ListForBusiness(ctx, admin, "biz-x")
	if err != nil || len(got) != 1 || got[0].CustomerID != "cust-a" {
		t.Fatalf("admin ListForBusiness: %+v %v", got, err)
	}
	if _, err := f.svc.ListForOwner(ctx, admin); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for the owner view, got %v", err)
	}
	if _, err := f.svc.Confirm(ctx, admin, got[0].ID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected admins not to confirm, got %v", err)
	}
}

func TestCanModify(t *testing.T) {
	biz := model.Business{ID: "b", OwnerID: "owner-1"}
	appt := model.Appointment{BusinessID: "b", CustomerID: "cust-a"}

	if !CanModify(appt, biz, customerA) || !CanModify(appt, biz, owner) {
		t.Fatal("expected booking customer and business owner to be allowed")
	}
	if CanModify(appt, biz, customerB) || CanModify(appt, biz, stranger) || CanModify(appt, biz, model.Actor{}) {
		t.Fatal("expected others to be denied")
	}
	if IsBusinessOwner(model.Business{}, model.Actor{}) {
		t.Fatal("empty owner must not match empty actor")
	}
}

type recordingRecorder struct {
	mu  sync.Mutex
	ops map[string]int
}

func (r *recordingRecorder) Observe(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.ops[op]++
	}
}

func TestRecorderObservesOutcomes(t *testing.T) {
	dir := business.NewMemoryDirectory(model.Business{ID: "biz-x", OwnerID: "owner-1", Hours: &model.Hours{Open: "11:00", Close: "14:00"}})
	rec := &recordingRecorder{ops: map[string]int{}}
	svc := NewService(storage.NewMemoryLedger(dir, nil), dir, WithRecorder(rec))

	appt, err := svc.Book(context.Background(), customerA, BookRequest{BusinessID: "biz-x", Date: "2024-05-01", Slot: "11:00-12:00"})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), customerA, appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if rec.ops["book"] != 1 || rec.ops["cancel"] != 1 {
		t.Fatalf("unexpected observations %v", rec.ops)
	}
}
