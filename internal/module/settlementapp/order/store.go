package order

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/inventory"
	"github.com/Draco1js/nexus-pass-sub001/internal/pkg/util"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

// OrderStore deduplicates purchase attempts by idempotency token and owns
// every order status transition.
type OrderStore interface {
	// RecordOrResume returns the order for the token, creating it in PENDING
	// when the token is new. The flag reports whether this call created it.
	RecordOrResume(ctx context.Context, token string, ticketType inventory.TicketType, buyerID, quantity int64, tx *sql.Tx) (Order, bool, error)
	// The Mark methods apply a guarded transition. A transition from a
	// terminal state is a no-op that returns the existing order; the flag
	// reports whether this call performed the transition.
	MarkReserved(ctx context.Context, orderID string, tx *sql.Tx) (Order, bool, error)
	MarkConfirmed(ctx context.Context, orderID string, tx *sql.Tx) (Order, bool, error)
	MarkFailed(ctx context.Context, orderID string, reason string, tx *sql.Tx) (Order, bool, error)
}

type orderStore struct {
	logger          *logrus.Logger
	orderRepository OrderRepository
}

type OrderStoreProperty struct {
	Logger          *logrus.Logger
	OrderRepository OrderRepository
}

func NewOrderStore(props OrderStoreProperty) OrderStore {
	return &orderStore{
		logger:          props.Logger,
		orderRepository: props.OrderRepository,
	}
}

// RecordOrResume implements OrderStore.
func (s *orderStore) RecordOrResume(ctx context.Context, token string, ticketType inventory.TicketType, buyerID, quantity int64, tx *sql.Tx) (Order, bool, error) {
	existing, err := s.orderRepository.FindByIdempotencyTokenForUpdate(ctx, token, tx)
	if err == nil {
		return existing, false, nil
	}
	if ae := errors.Destruct(err); ae.Status != status.NOT_FOUND {
		return Order{}, false, err
	}

	if quantity < ticketType.MinPerOrder || quantity > ticketType.MaxPerOrder {
		return Order{}, false, errors.New(
			http.StatusBadRequest,
			status.INVALID_QUANTITY,
			fmt.Sprintf("quantity must be between %d and %d for ticket type '%s'", ticketType.MinPerOrder, ticketType.MaxPerOrder, ticketType.ID),
		)
	}

	now := time.Now()
	o := Order{
		ID:               util.GenerateTimestampWithPrefix("NPO"),
		IdempotencyToken: token,
		BuyerID:          buyerID,
		TicketTypeID:     ticketType.ID,
		Quantity:         quantity,
		UnitPrice:        ticketType.Price,
		TotalAmount:      ticketType.Price * quantity,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	inserted, err := s.orderRepository.Save(ctx, o, tx)
	if err != nil {
		return Order{}, false, err
	}

	if !inserted {
		// Lost the insert race; the winner's row is committed by now.
		existing, err := s.orderRepository.FindByIdempotencyTokenForUpdate(ctx, token, tx)
		if err != nil {
			return Order{}, false, err
		}
		return existing, false, nil
	}

	return o, true, nil
}

func (s *orderStore) transition(ctx context.Context, orderID string, to Status, reason *string, tx *sql.Tx) (Order, bool, error) {
	o, err := s.orderRepository.FindByID(ctx, orderID, tx)
	if err != nil {
		return Order{}, false, err
	}

	if o.Status == to || o.Status.Terminal() {
		return o, false, nil
	}

	if !o.Status.CanTransitionTo(to) {
		return o, false, errors.New(
			http.StatusConflict,
			status.CONFLICT,
			fmt.Sprintf("order '%s' cannot transition from %s to %s", orderID, o.Status, to),
		)
	}

	changed, err := s.orderRepository.UpdateStatus(ctx, orderID, o.Status, to, reason, tx)
	if err != nil {
		return Order{}, false, err
	}

	updated, err := s.orderRepository.FindByID(ctx, orderID, tx)
	if err != nil {
		return Order{}, false, err
	}

	return updated, changed, nil
}

// MarkReserved implements OrderStore.
func (s *orderStore) MarkReserved(ctx context.Context, orderID string, tx *sql.Tx) (Order, bool, error) {
	return s.transition(ctx, orderID, StatusReserved, nil, tx)
}

// MarkConfirmed implements OrderStore.
func (s *orderStore) MarkConfirmed(ctx context.Context, orderID string, tx *sql.Tx) (Order, bool, error) {
	return s.transition(ctx, orderID, StatusConfirmed, nil, tx)
}

// MarkFailed implements OrderStore.
func (s *orderStore) MarkFailed(ctx context.Context, orderID string, reason string, tx *sql.Tx) (Order, bool, error) {
	return s.transition(ctx, orderID, StatusFailed, &reason, tx)
}
