package settlement

import (
	"time"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/ticket"
)

type CompleteResponse struct {
	OrderID          string           `json:"order_id"`
	IdempotencyToken string           `json:"idempotency_token"`
	TicketTypeID     string           `json:"ticket_type_id"`
	BuyerID          int64            `json:"buyer_id"`
	Quantity         int64            `json:"quantity"`
	UnitPrice        int64            `json:"unit_price"`
	TotalAmount      int64            `json:"total_amount"`
	Status           string           `json:"status"`
	Tickets          []TicketResponse `json:"tickets"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type TicketResponse struct {
	ID           string    `json:"id"`
	TicketTypeID string    `json:"ticket_type_id"`
	SerialCode   string    `json:"serial_code"`
	Status       string    `json:"status"`
	IssuedAt     time.Time `json:"issued_at"`
}

func (r *CompleteResponse) PopulateFromEntity(o order.Order, tickets []ticket.Ticket) {
	r.OrderID = o.ID
	r.IdempotencyToken = o.IdempotencyToken
	r.TicketTypeID = o.TicketTypeID
	r.BuyerID = o.BuyerID
	r.Quantity = o.Quantity
	r.UnitPrice = o.UnitPrice
	r.TotalAmount = o.TotalAmount
	r.Status = string(o.Status)
	r.CreatedAt = o.CreatedAt
	r.UpdatedAt = o.UpdatedAt

	ticketsResponse := make([]TicketResponse, len(tickets))
	for k, v := range tickets {
		ticketsResponse[k] = TicketResponse{
			ID:           v.ID,
			TicketTypeID: v.TicketTypeID,
			SerialCode:   v.SerialCode,
			Status:       string(v.Status),
			IssuedAt:     v.IssuedAt,
		}
	}
	r.Tickets = ticketsResponse
}

type ReconcileStaleResponse struct {
	ReleasedOrders int64 `json:"released_orders"`
}
