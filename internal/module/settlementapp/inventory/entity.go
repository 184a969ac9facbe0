package inventory

import "time"

// TicketType is one sellable class of admission for an event. TotalQuantity is
// fixed at creation; AvailableQuantity is mutated only by the ledger.
type TicketType struct {
	ID                string
	EventID           string
	Name              string
	Price             int64
	Currency          string
	TotalQuantity     int64
	AvailableQuantity int64
	MinPerOrder       int64
	MaxPerOrder       int64
	SalesStartTime    *time.Time
	SalesEndTime      *time.Time
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SalesWindowOpen reports whether the ticket type can be sold at the given
// instant. A nil boundary leaves that side of the window open.
func (t TicketType) SalesWindowOpen(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.SalesStartTime != nil && now.Before(*t.SalesStartTime) {
		return false
	}
	if t.SalesEndTime != nil && !now.Before(*t.SalesEndTime) {
		return false
	}

	return true
}

type ReservationResult struct {
	TicketTypeID    string
	Quantity        int64
	AvailableBefore int64
	AvailableAfter  int64
}
