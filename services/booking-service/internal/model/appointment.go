package model

import "time"

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

// Appointment is a reservation of one slot at one business on one date.
// Slot is the canonical "HH:mm-HH:mm" label produced by the schedule deriver.
type Appointment struct {
	ID          string     `json:"id"`
	BusinessID  string     `json:"businessId"`
	CustomerID  string     `json:"customerId"`
	Date        string     `json:"date"`
	Slot        string     `json:"slot"`
	Confirmed   bool       `json:"confirmed"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// SameSlot reports whether a holds the given (business, date, slot) triple.
func (a Appointment) SameSlot(businessID, date, slot string) bool {
	return a.BusinessID == businessID && a.Date == date && a.Slot == slot
}
