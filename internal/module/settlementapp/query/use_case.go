package query

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/inventory"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/ticket"
	"github.com/Draco1js/nexus-pass-sub001/internal/pkg/session"
)

// QueryUseCase serves the read projections consumed by dashboards. It holds no
// business rules; everything it returns reflects state the settlement flow has
// already committed.
type QueryUseCase interface {
	GetAvailability(ctx context.Context, ticketTypeID string) (AvailabilityResponse, error)
	GetManyOrder(ctx context.Context, req GetManyOrderRequest) (GetManyOrderResponse, error)
	GetManyTicket(ctx context.Context, req GetManyTicketRequest) (GetManyTicketResponse, error)
}

type queryUseCase struct {
	logger               *logrus.Logger
	timeout              time.Duration
	ticketTypeRepository inventory.TicketTypeRepository
	orderRepository      order.OrderRepository
	ticketRepository     ticket.TicketRepository
}

type QueryUseCaseProperty struct {
	Logger               *logrus.Logger
	Timeout              time.Duration
	TicketTypeRepository inventory.TicketTypeRepository
	OrderRepository      order.OrderRepository
	TicketRepository     ticket.TicketRepository
}

func NewQueryUseCase(props QueryUseCaseProperty) QueryUseCase {
	return &queryUseCase{
		logger:               props.Logger,
		timeout:              props.Timeout,
		ticketTypeRepository: props.TicketTypeRepository,
		orderRepository:      props.OrderRepository,
		ticketRepository:     props.TicketRepository,
	}
}

// GetAvailability implements QueryUseCase.
func (u *queryUseCase) GetAvailability(ctx context.Context, ticketTypeID string) (AvailabilityResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tt, err := u.ticketTypeRepository.FindByID(ctx, ticketTypeID, nil)
	if err != nil {
		return AvailabilityResponse{}, err
	}

	resp := AvailabilityResponse{}
	resp.PopulateFromEntity(tt, time.Now())

	return resp, nil
}

// GetManyOrder implements QueryUseCase.
func (u *queryUseCase) GetManyOrder(ctx context.Context, req GetManyOrderRequest) (GetManyOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.Size

	orders, err := u.orderRepository.FindManyByBuyerID(ctx, acc.ID, offset, req.Size, nil)
	if err != nil {
		return nil, err
	}

	resp := GetManyOrderResponse{}
	resp.PopulateFromEntities(orders)

	return resp, nil
}

// GetManyTicket implements QueryUseCase.
func (u *queryUseCase) GetManyTicket(ctx context.Context, req GetManyTicketRequest) (GetManyTicketResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.Size

	tickets, err := u.ticketRepository.FindManyByOwnerID(ctx, acc.ID, offset, req.Size, nil)
	if err != nil {
		return nil, err
	}

	resp := GetManyTicketResponse{}
	resp.PopulateFromEntities(tickets)

	return resp, nil
}
