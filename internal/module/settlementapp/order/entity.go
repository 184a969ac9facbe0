package order

import "time"

// Status is the closed set of order lifecycle states. Transitions outside the
// table below are impossible to express through the store.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusReserved: true,
		StatusFailed:   true,
	},
	StatusReserved: {
		StatusConfirmed: true,
		StatusFailed:    true,
	},
	StatusConfirmed: {},
	StatusFailed:    {},
}

func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Order is one purchase attempt, uniquely identified by the idempotency token
// handed over by the payment collaborator. At most one order ever exists per
// token.
type Order struct {
	ID               string
	IdempotencyToken string
	BuyerID          int64
	TicketTypeID     string
	Quantity         int64
	UnitPrice        int64
	TotalAmount      int64
	Status           Status
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
