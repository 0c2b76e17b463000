package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/localli/booking/services/booking-service/internal/model"
)

type BusinessLookup interface {
	Get(ctx context.Context, id string) (model.Business, error)
}

type BookedSlotsReader interface {
	BookedSlots(ctx context.Context, businessID, date string) ([]string, error)
}

type SlotAvailability struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Resolver reconciles a business's derived schedule with its active bookings.
type Resolver struct {
	businesses BusinessLookup
	bookings   BookedSlotsReader
}

func NewResolver(businesses BusinessLookup, bookings BookedSlotsReader) *Resolver {
	return &Resolver{businesses: businesses, bookings: bookings}
}

func (r *Resolver) GetAvailability(ctx context.Context, businessID, date string) ([]SlotAvailability, error) {
	_, day, windows, err := r.schedule(ctx, businessID, date)
	if err != nil {
		return nil, err
	}

	booked, err := r.bookings.BookedSlots(ctx, businessID, day.Format(DateLayout))
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(booked))
	for _, label := range booked {
		taken[label] = struct{}{}
	}

	out := make([]SlotAvailability, 0, len(windows))
	for _, w := range windows {
		label := w.Label()
		_, isTaken := taken[label]
		out = append(out, SlotAvailability{Time: label, Available: !isTaken})
	}
	return out, nil
}

// ValidateSlot checks that slot is one of the windows derived for the
// business on date and returns the business and the matching window.
func (r *Resolver) ValidateSlot(ctx context.Context, businessID, date, slot string) (model.Business, Window, error) {
	biz, _, windows, err := r.schedule(ctx, businessID, date)
	if err != nil {
		return model.Business{}, Window{}, err
	}
	for _, w := range windows {
		if w.Label() == slot {
			return biz, w, nil
		}
	}
	return model.Business{}, Window{}, fmt.Errorf("%w: slot %q is not offered on %s", model.ErrValidation, slot, date)
}

func (r *Resolver) schedule(ctx context.Context, businessID, date string) (model.Business, time.Time, []Window, error) {
	day, err := ParseDate(date)
	if err != nil {
		return model.Business{}, time.Time{}, nil, err
	}
	biz, err := r.businesses.Get(ctx, businessID)
	if err != nil {
		return model.Business{}, time.Time{}, nil, err
	}
	windows, err := Schedule(biz, day)
	if err != nil {
		return model.Business{}, time.Time{}, nil, err
	}
	return biz, day, windows, nil
}
