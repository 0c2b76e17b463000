package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/localli/booking/services/booking-service/internal/model"
)

const (
	DateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(hour*60 + minute), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Window is one bookable slot, half-open [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Label renders the canonical "HH:mm-HH:mm" form used as the booking key.
func (w Window) Label() string {
	return w.Start.Format(clockLayout) + "-" + w.End.Format(clockLayout)
}

// ParseDate parses a calendar day in YYYY-MM-DD form, anchored at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD (got %q)", model.ErrValidation, s)
	}
	return d, nil
}

// DeriveSlots cuts [open, closing) into consecutive windows of slotMinutes on
// date. A trailing window that would overrun closing is dropped. Times are
// wall-clock values anchored at UTC so labels never shift with timezones.
func DeriveSlots(open, closing Clock, slotMinutes int, date time.Time) ([]Window, error) {
	if slotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive (got %d)", model.ErrConfiguration, slotMinutes)
	}
	if open >= closing {
		return nil, nil
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := day.Add(time.Duration(open) * time.Minute)
	windowEnd := day.Add(time.Duration(closing) * time.Minute)
	duration := time.Duration(slotMinutes) * time.Minute

	var slots []Window
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		slots = append(slots, Window{Start: t, End: t.Add(duration)})
	}
	return slots, nil
}

// Schedule derives the windows of b on date from its stored hours.
func Schedule(b model.Business, date time.Time) ([]Window, error) {
	if b.Hours == nil || b.Hours.Open == "" || b.Hours.Close == "" {
		return nil, fmt.Errorf("%w: business %s has no operating hours", model.ErrConfiguration, b.ID)
	}
	open, err := ParseClock(b.Hours.Open)
	if err != nil {
		return nil, fmt.Errorf("%w: business %s: %v", model.ErrConfiguration, b.ID, err)
	}
	closing, err := ParseClock(b.Hours.Close)
	if err != nil {
		return nil, fmt.Errorf("%w: business %s: %v", model.ErrConfiguration, b.ID, err)
	}
	return DeriveSlots(open, closing, b.SlotDuration(), date)
}

// WindowOf parses a stored (date, slot label) pair back into a Window.
func WindowOf(date, slot string) (Window, error) {
	day, err := ParseDate(date)
	if err != nil {
		return Window{}, err
	}
	from, to, ok := strings.Cut(slot, "-")
	if !ok {
		return Window{}, fmt.Errorf("%w: slot must be HH:mm-HH:mm (got %q)", model.ErrValidation, slot)
	}
	start, err := ParseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	end, err := ParseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return Window{
		Start: day.Add(time.Duration(start) * time.Minute),
		End:   day.Add(time.Duration(end) * time.Minute),
	}, nil
}
