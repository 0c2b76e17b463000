package model

const DefaultSlotMinutes = 60

// Hours is a daily operating window in "HH:mm" wall-clock form.
type Hours struct {
	Open  string `json:"open" yaml:"open"`
	Close string `json:"close" yaml:"close"`
}

type Business struct {
	ID          string `json:"id" yaml:"id"`
	OwnerID     string `json:"ownerId" yaml:"owner_id"`
	Name        string `json:"name" yaml:"name"`
	Hours       *Hours `json:"hours,omitempty" yaml:"hours"`
	SlotMinutes int    `json:"slotMinutes" yaml:"slot_minutes"`
	Timezone    string `json:"timezone" yaml:"timezone"`
}

// SlotDuration returns the configured slot length, defaulting to an hour
// when the stored value is zero. Negative values are returned as-is so the
// deriver can reject them.
func (b Business) SlotDuration() int {
	if b.SlotMinutes == 0 {
		return DefaultSlotMinutes
	}
	return b.SlotMinutes
}

func (b Business) Location() string {
	if b.Timezone == "" {
		return "UTC"
	}
	return b.Timezone
}
