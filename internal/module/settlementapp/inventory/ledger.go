package inventory

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

// Ledger owns every mutation of a ticket type's available quantity. Reserve
// and Release must run inside the caller's transaction so the decrement
// commits or rolls back together with the order it belongs to.
type Ledger interface {
	Reserve(ctx context.Context, ticketTypeID string, quantity int64, tx *sql.Tx) (ReservationResult, error)
	Release(ctx context.Context, ticketTypeID string, quantity int64, tx *sql.Tx) error
}

type ledger struct {
	logger               *logrus.Logger
	ticketTypeRepository TicketTypeRepository
}

type LedgerProperty struct {
	Logger               *logrus.Logger
	TicketTypeRepository TicketTypeRepository
}

func NewLedger(props LedgerProperty) Ledger {
	return &ledger{
		logger:               props.Logger,
		ticketTypeRepository: props.TicketTypeRepository,
	}
}

// Reserve implements Ledger. The FOR UPDATE read makes the check and the
// decrement a single atomic step per ticket type row; on failure nothing is
// mutated.
func (l *ledger) Reserve(ctx context.Context, ticketTypeID string, quantity int64, tx *sql.Tx) (ReservationResult, error) {
	if quantity < 1 {
		return ReservationResult{}, errors.New(http.StatusBadRequest, status.INVALID_QUANTITY, "reservation quantity must be at least 1")
	}

	tt, err := l.ticketTypeRepository.FindByIDForUpdate(ctx, ticketTypeID, tx)
	if err != nil {
		return ReservationResult{}, err
	}

	if !tt.SalesWindowOpen(time.Now()) {
		return ReservationResult{}, errors.New(http.StatusGone, status.SALES_WINDOW_CLOSED, "ticket type is not on sale")
	}

	if tt.AvailableQuantity < quantity {
		return ReservationResult{}, errors.New(http.StatusConflict, status.INSUFFICIENT_INVENTORY, "the requested quantity is no longer available")
	}

	if err := l.ticketTypeRepository.DecrementAvailable(ctx, ticketTypeID, quantity, tx); err != nil {
		return ReservationResult{}, err
	}

	return ReservationResult{
		TicketTypeID:    ticketTypeID,
		Quantity:        quantity,
		AvailableBefore: tt.AvailableQuantity,
		AvailableAfter:  tt.AvailableQuantity - quantity,
	}, nil
}

// Release implements Ledger. Used only for compensation after a reservation
// whose order could not be confirmed.
func (l *ledger) Release(ctx context.Context, ticketTypeID string, quantity int64, tx *sql.Tx) error {
	if quantity < 1 {
		return errors.New(http.StatusBadRequest, status.INVALID_QUANTITY, "release quantity must be at least 1")
	}

	return l.ticketTypeRepository.IncrementAvailable(ctx, ticketTypeID, quantity, tx)
}
