package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/sirupsen/logrus"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/inventory"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/ticket"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/gctasks"
	"github.com/Draco1js/nexus-pass-sub001/pkg/pubsub"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type SettlementUseCase interface {
	// Complete turns one completed payment into exactly one set of issued
	// tickets, no matter how many times the collaborator retries the token.
	Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error)
	// OnReconcileOrder releases the inventory of a single order whose
	// reservation went stale, typically fired by a deferred task.
	OnReconcileOrder(ctx context.Context, e ReconcileOrderEvent) error
	// ReconcileStaleReservations sweeps all orders stuck in RESERVED past the
	// grace period and releases their inventory.
	ReconcileStaleReservations(ctx context.Context) (ReconcileStaleResponse, error)
}

type settlementUseCase struct {
	logger                 *logrus.Logger
	timeout                time.Duration
	baseURL                string
	reservationGracePeriod time.Duration
	reconcileBatchSize     int64
	ticketTypeRepository   inventory.TicketTypeRepository
	ledger                 inventory.Ledger
	orderRepository        order.OrderRepository
	orderStore             order.OrderStore
	ticketRepository       ticket.TicketRepository
	issuer                 ticket.Issuer
	publisher              pubsub.Publisher
	cloudTask              gctasks.Client
}

type SettlementUseCaseProperty struct {
	Logger                 *logrus.Logger
	Timeout                time.Duration
	BaseURL                string
	ReservationGracePeriod time.Duration
	ReconcileBatchSize     int64
	TicketTypeRepository   inventory.TicketTypeRepository
	Ledger                 inventory.Ledger
	OrderRepository        order.OrderRepository
	OrderStore             order.OrderStore
	TicketRepository       ticket.TicketRepository
	Issuer                 ticket.Issuer
	Publisher              pubsub.Publisher
	CloudTask              gctasks.Client
}

func NewSettlementUseCase(props SettlementUseCaseProperty) SettlementUseCase {
	return &settlementUseCase{
		logger:                 props.Logger,
		timeout:                props.Timeout,
		baseURL:                props.BaseURL,
		reservationGracePeriod: props.ReservationGracePeriod,
		reconcileBatchSize:     props.ReconcileBatchSize,
		ticketTypeRepository:   props.TicketTypeRepository,
		ledger:                 props.Ledger,
		orderRepository:        props.OrderRepository,
		orderStore:             props.OrderStore,
		ticketRepository:       props.TicketRepository,
		issuer:                 props.Issuer,
		publisher:              props.Publisher,
		cloudTask:              props.CloudTask,
	}
}

// Complete implements SettlementUseCase. The flow commits in two steps: the
// first transaction binds the reservation to the order (token dedup, row-level
// inventory decrement, RESERVED), the second issues tickets and confirms. An
// issuance failure after the first commit is compensated by releasing the
// reservation before returning.
func (u *settlementUseCase) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return CompleteResponse{}, err
	}

	tt, err := u.ticketTypeRepository.FindByID(ctx, req.TicketTypeID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, err
	}

	o, created, err := u.orderStore.RecordOrResume(ctx, req.IdempotencyToken, tt, req.BuyerID, req.Quantity, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, err
	}

	if !created {
		switch o.Status {
		case order.StatusConfirmed:
			// Idempotent replay; inventory is not touched again.
			u.orderRepository.Rollback(ctx, tx)

			tickets, err := u.ticketRepository.FindManyByOrderID(ctx, o.ID, nil)
			if err != nil {
				return CompleteResponse{}, err
			}

			resp := CompleteResponse{}
			resp.PopulateFromEntity(o, tickets)
			return resp, nil

		case order.StatusFailed:
			u.orderRepository.Rollback(ctx, tx)
			return CompleteResponse{}, failureFromOrder(o)

		case order.StatusReserved:
			// A previous attempt crashed between reservation and issuance.
			// The reservation is durable; resume at the issuance step.
			u.orderRepository.Rollback(ctx, tx)
			return u.issueAndConfirm(ctx, o)
		}
		// StatusPending falls through and resumes the reservation inside
		// this transaction, protected by the locked order row.
	}

	if _, err := u.ledger.Reserve(ctx, tt.ID, o.Quantity, tx); err != nil {
		ae := errors.Destruct(err)
		if ae.Status == status.INSUFFICIENT_INVENTORY || ae.Status == status.SALES_WINDOW_CLOSED {
			if _, _, ferr := u.orderStore.MarkFailed(ctx, o.ID, ae.Status, tx); ferr != nil {
				u.orderRepository.Rollback(ctx, tx)
				return CompleteResponse{}, ferr
			}
			if cerr := u.orderRepository.CommitTx(ctx, tx); cerr != nil {
				return CompleteResponse{}, cerr
			}
			return CompleteResponse{}, err
		}

		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, err
	}

	o, _, err = u.orderStore.MarkReserved(ctx, o.ID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, err
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return CompleteResponse{}, err
	}

	u.scheduleReconcile(ctx, o)

	return u.issueAndConfirm(ctx, o)
}

func (u *settlementUseCase) issueAndConfirm(ctx context.Context, o order.Order) (CompleteResponse, error) {
	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return CompleteResponse{}, u.compensate(ctx, o, err)
	}

	// The row lock serializes concurrent issuers of the same order: a token
	// replay racing the original settlement waits here and then observes the
	// terminal state instead of minting a second set.
	locked, err := u.orderRepository.FindByIDForUpdate(ctx, o.ID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, err
	}

	switch locked.Status {
	case order.StatusConfirmed:
		u.orderRepository.Rollback(ctx, tx)

		tickets, err := u.ticketRepository.FindManyByOrderID(ctx, locked.ID, nil)
		if err != nil {
			return CompleteResponse{}, err
		}

		resp := CompleteResponse{}
		resp.PopulateFromEntity(locked, tickets)
		return resp, nil

	case order.StatusFailed:
		// The reconciliation sweep reclaimed the reservation first.
		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, failureFromOrder(locked)
	}

	tickets, err := u.issuer.Issue(ctx, locked, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, u.compensate(ctx, locked, err)
	}

	confirmed, _, err := u.orderStore.MarkConfirmed(ctx, locked.ID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return CompleteResponse{}, u.compensate(ctx, locked, err)
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return CompleteResponse{}, u.compensate(ctx, locked, err)
	}

	settledEvent := OrderSettledEvent{
		OrderID:          confirmed.ID,
		IdempotencyToken: confirmed.IdempotencyToken,
		TicketTypeID:     confirmed.TicketTypeID,
		BuyerID:          confirmed.BuyerID,
		Quantity:         confirmed.Quantity,
		TotalAmount:      confirmed.TotalAmount,
		SettledAt:        confirmed.UpdatedAt,
	}
	for _, t := range tickets {
		settledEvent.TicketIDs = append(settledEvent.TicketIDs, t.ID)
	}

	eventBuff, _ := json.Marshal(settledEvent)
	u.publisher.Publish(ctx, "order-settled", confirmed.IdempotencyToken, nil, eventBuff)

	resp := CompleteResponse{}
	resp.PopulateFromEntity(confirmed, tickets)

	return resp, nil
}

// compensate releases the reserved inventory and records the failure, then
// returns the retryable issuance error. The status transition is the gate: if
// the reconciliation sweep already failed the order, the release is skipped so
// inventory is never handed back twice.
func (u *settlementUseCase) compensate(ctx context.Context, o order.Order, cause error) error {
	retryable := errors.New(http.StatusServiceUnavailable, status.ISSUANCE_FAILURE, "ticket issuance failed; the reservation has been released and it is safe to retry with the same token")

	u.logger.WithContext(ctx).WithField("orderId", o.ID).WithError(cause).Error()

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return retryable
	}

	_, changed, err := u.orderStore.MarkFailed(ctx, o.ID, status.ISSUANCE_FAILURE, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return retryable
	}

	if changed {
		if err := u.ledger.Release(ctx, o.TicketTypeID, o.Quantity, tx); err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return retryable
		}
	}

	u.orderRepository.CommitTx(ctx, tx)

	return retryable
}

func (u *settlementUseCase) scheduleReconcile(ctx context.Context, o order.Order) {
	eventBuff, _ := json.Marshal(ReconcileOrderEvent{OrderID: o.ID})

	taskRequest := gctasks.Request{
		URL:    fmt.Sprintf("%s/np-settlement/v1/settlementapp/settlements/on-reconcile", u.baseURL),
		Method: cloudtaskspb.HttpMethod_POST,
		Body:   eventBuff,
	}
	u.cloudTask.DeferCreateTaskInDuration("reconcile-order", taskRequest, u.reservationGracePeriod)
}

// OnReconcileOrder implements SettlementUseCase.
func (u *settlementUseCase) OnReconcileOrder(ctx context.Context, e ReconcileOrderEvent) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return err
	}

	o, err := u.orderRepository.FindByIDForUpdate(ctx, e.OrderID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	if o.Status != order.StatusReserved || time.Since(o.UpdatedAt) < u.reservationGracePeriod {
		u.orderRepository.Rollback(ctx, tx)
		return nil
	}

	if err := u.reclaim(ctx, o, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	return u.orderRepository.CommitTx(ctx, tx)
}

// ReconcileStaleReservations implements SettlementUseCase.
func (u *settlementUseCase) ReconcileStaleReservations(ctx context.Context) (ReconcileStaleResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return ReconcileStaleResponse{}, err
	}

	olderThan := time.Now().Add(-u.reservationGracePeriod)

	stale, err := u.orderRepository.FindManyStaleReserved(ctx, olderThan, u.reconcileBatchSize, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return ReconcileStaleResponse{}, err
	}

	var released int64
	for _, o := range stale {
		if err := u.reclaim(ctx, o, tx); err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return ReconcileStaleResponse{}, err
		}
		released++
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return ReconcileStaleResponse{}, err
	}

	if released > 0 {
		u.logger.WithContext(ctx).WithField("releasedOrders", released).Info("stale reservations have been released")
	}

	return ReconcileStaleResponse{ReleasedOrders: released}, nil
}

// reclaim moves one stale reserved order to FAILED and hands its quantity
// back to the ledger. The guarded transition makes it safe to race live
// settlement: whoever loses the transition skips the release.
func (u *settlementUseCase) reclaim(ctx context.Context, o order.Order, tx *sql.Tx) error {
	_, changed, err := u.orderStore.MarkFailed(ctx, o.ID, status.ISSUANCE_FAILURE, tx)
	if err != nil {
		return err
	}

	if changed {
		if err := u.ledger.Release(ctx, o.TicketTypeID, o.Quantity, tx); err != nil {
			return err
		}
	}

	return nil
}

func failureFromOrder(o order.Order) error {
	reason := status.INTERNAL_SERVER_ERROR
	if o.FailureReason != nil {
		reason = *o.FailureReason
	}

	switch reason {
	case status.INSUFFICIENT_INVENTORY:
		return errors.New(http.StatusConflict, reason, "the requested quantity is no longer available")
	case status.SALES_WINDOW_CLOSED:
		return errors.New(http.StatusGone, reason, "ticket type is not on sale")
	case status.ISSUANCE_FAILURE:
		return errors.New(http.StatusServiceUnavailable, reason, "ticket issuance failed; it is safe to retry with the same token")
	default:
		return errors.New(http.StatusConflict, status.CONFLICT, fmt.Sprintf("order '%s' has already failed", o.ID))
	}
}
