package settlement

type CompleteRequest struct {
	IdempotencyToken string `json:"idempotency_token" validate:"required"`
	TicketTypeID     string `json:"ticket_type_id" validate:"required"`
	BuyerID          int64  `json:"buyer_id" validate:"required"`
	Quantity         int64  `json:"quantity" validate:"required,gte=1"`
}
