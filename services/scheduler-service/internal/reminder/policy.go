package reminder

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/localli/booking/libs/config"
)

// Policy decides how long before an appointment reminders go out.
type Policy interface {
	ReminderOffsets(ctx context.Context, businessID string) ([]time.Duration, error)
}

type staticPolicy struct {
	offsets []time.Duration
}

func NewStaticPolicy(offsets []time.Duration) Policy {
	return &staticPolicy{offsets: offsets}
}

func (p *staticPolicy) ReminderOffsets(_ context.Context, _ string) ([]time.Duration, error) {
	return p.offsets, nil
}

// ParseOffsets reads a comma separated list of minutes, e.g. "1440,60".
// Duplicates are dropped and the result is ordered longest first.
func ParseOffsets(raw string) ([]time.Duration, error) {
	seen := map[int]bool{}
	var mins []int
	for _, item := range config.SplitList(raw) {
		n, err := strconv.Atoi(item)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("reminder offset must be a positive number of minutes (got %q)", item)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		mins = append(mins, n)
	}
	if len(mins) == 0 {
		return nil, fmt.Errorf("at least one reminder offset is required")
	}
	sort.Sort(sort.Reverse(sort.IntSlice(mins)))

	out := make([]time.Duration, len(mins))
	for i, n := range mins {
		out[i] = time.Duration(n) * time.Minute
	}
	return out, nil
}
