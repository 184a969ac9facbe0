package query

import (
	"time"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/inventory"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/ticket"
)

type AvailabilityResponse struct {
	TicketTypeID      string `json:"ticket_type_id"`
	EventID           string `json:"event_id"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	Currency          string `json:"currency"`
	TotalQuantity     int64  `json:"total_quantity"`
	AvailableQuantity int64  `json:"available_quantity"`
	OnSale            bool   `json:"on_sale"`
}

func (r *AvailabilityResponse) PopulateFromEntity(tt inventory.TicketType, now time.Time) {
	r.TicketTypeID = tt.ID
	r.EventID = tt.EventID
	r.Name = tt.Name
	r.Price = tt.Price
	r.Currency = tt.Currency
	r.TotalQuantity = tt.TotalQuantity
	r.AvailableQuantity = tt.AvailableQuantity
	r.OnSale = tt.SalesWindowOpen(now)
}

type OrderResponse struct {
	ID            string    `json:"id"`
	TicketTypeID  string    `json:"ticket_type_id"`
	Quantity      int64     `json:"quantity"`
	UnitPrice     int64     `json:"unit_price"`
	TotalAmount   int64     `json:"total_amount"`
	Status        string    `json:"status"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type GetManyOrderResponse []OrderResponse

func (r *GetManyOrderResponse) PopulateFromEntities(orders []order.Order) {
	data := make(GetManyOrderResponse, len(orders))
	for k, o := range orders {
		data[k] = OrderResponse{
			ID:            o.ID,
			TicketTypeID:  o.TicketTypeID,
			Quantity:      o.Quantity,
			UnitPrice:     o.UnitPrice,
			TotalAmount:   o.TotalAmount,
			Status:        string(o.Status),
			FailureReason: o.FailureReason,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
		}
	}
	*r = data
}

type TicketResponse struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	SerialCode   string    `json:"serial_code"`
	Status       string    `json:"status"`
	IssuedAt     time.Time `json:"issued_at"`
}

type GetManyTicketResponse []TicketResponse

func (r *GetManyTicketResponse) PopulateFromEntities(tickets []ticket.Ticket) {
	data := make(GetManyTicketResponse, len(tickets))
	for k, t := range tickets {
		data[k] = TicketResponse{
			ID:           t.ID,
			OrderID:      t.OrderID,
			TicketTypeID: t.TicketTypeID,
			SerialCode:   t.SerialCode,
			Status:       string(t.Status),
			IssuedAt:     t.IssuedAt,
		}
	}
	*r = data
}
