package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/localli/booking/services/booking-service/internal/model"
)

type fakeBusinesses map[string]model.Business

func (f fakeBusinesses) Get(_ context.Context, id string) (model.Business, error) {
	b, ok := f[id]
	if !ok {
		return model.Business{}, model.ErrNotFound
	}
	return b, nil
}

type fakeBookings map[string][]string

func (f fakeBookings) BookedSlots(_ context.Context, businessID, date string) ([]string, error) {
	return f[businessID+"|"+date], nil
}

func newTestResolver(bookings fakeBookings) *Resolver {
	return NewResolver(fakeBusinesses{
		"biz-1":     {ID: "biz-1", OwnerID: "owner-1", Hours: &model.Hours{Open: "11:00", Close: "14:00"}, SlotMinutes: 60},
		"biz-nohrs": {ID: "biz-nohrs", OwnerID: "owner-1"},
	}, bookings)
}

func TestGetAvailability_AllFreeWithoutBookings(t *testing.T) {
	r := newTestResolver(fakeBookings{})
	got, err := r.GetAvailability(context.Background(), "biz-1", "2024-05-01")
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 slots, got %+v", got)
	}
	for _, s := range got {
		if !s.Available {
			t.Fatalf("expected %s to be available", s.Time)
		}
	}
}

func TestGetAvailability_MarksBookedSlot(t *testing.T) {
	r := newTestResolver(fakeBookings{"biz-1|2024-05-01": {"12:00-13:00"}})
	got, err := r.GetAvailability(context.Background(), "biz-1", "2024-05-01")
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	want := []SlotAvailability{
		{Time: "11:00-12:00", Available: true},
		{Time: "12:00-13:00", Available: false},
		{Time: "13:00-14:00", Available: true},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	other, err := r.GetAvailability(context.Background(), "biz-1", "2024-05-02")
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	for _, s := range other {
		if !s.Available {
			t.Fatalf("booking on another date leaked into %s", s.Time)
		}
	}
}

func TestGetAvailability_Errors(t *testing.T) {
	r := newTestResolver(fakeBookings{})
	ctx := context.Background()
	if _, err := r.GetAvailability(ctx, "missing", "2024-05-01"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.GetAvailability(ctx, "biz-nohrs", "2024-05-01"); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := r.GetAvailability(ctx, "biz-1", "05/01/2024"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestValidateSlot(t *testing.T) {
	r := newTestResolver(fakeBookings{})
	ctx := context.Background()
	biz, w, err := r.ValidateSlot(ctx, "biz-1", "2024-05-01", "12:00-13:00")
	if err != nil {
		t.Fatalf("ValidateSlot: %v", err)
	}
	if biz.ID != "biz-1" || w.Start.Hour() != 12 {
		t.Fatalf("unexpected result %+v %+v", biz, w)
	}
	for _, bad := range []string{"12:00-12:30", "12:00 - 13:00", "12:0-13:00", ""} {
		if _, _, err := r.ValidateSlot(ctx, "biz-1", "2024-05-01", bad); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("%q: expected ErrValidation, got %v", bad, err)
		}
	}
}
