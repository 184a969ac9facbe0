package ticket

import "time"

type Status string

const (
	StatusValid    Status = "VALID"
	StatusRedeemed Status = "REDEEMED"
	StatusVoid     Status = "VOID"
)

// Ticket is one issued admission unit. SerialCode is the unguessable
// identifier checked at the venue gate; it is never derived from the row id.
type Ticket struct {
	ID           string
	OrderID      string
	TicketTypeID string
	OwnerID      int64
	SerialCode   string
	Status       Status
	IssuedAt     time.Time
}
