package settlement

import "time"

// PaymentCompletedEvent is the callback payload from the payment collaborator.
// CustomerSessionToken is unique per real-world payment event and doubles as
// the settlement idempotency token.
type PaymentCompletedEvent struct {
	TransactionStatus    string `json:"transaction_status"`
	CustomerSessionToken string `json:"customer_session_token"`
	TicketTypeID         string `json:"ticket_type_id"`
	BuyerID              int64  `json:"buyer_id"`
	Quantity             int64  `json:"quantity"`
}

type ReconcileOrderEvent struct {
	OrderID string `json:"order_id"`
}

type OrderSettledEvent struct {
	OrderID          string    `json:"order_id"`
	IdempotencyToken string    `json:"idempotency_token"`
	TicketTypeID     string    `json:"ticket_type_id"`
	BuyerID          int64     `json:"buyer_id"`
	Quantity         int64     `json:"quantity"`
	TotalAmount      int64     `json:"total_amount"`
	TicketIDs        []string  `json:"ticket_ids"`
	SettledAt        time.Time `json:"settled_at"`
}
