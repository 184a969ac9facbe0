package order

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type OrderRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(ctx context.Context, tx *sql.Tx) error
	Rollback(ctx context.Context, tx *sql.Tx) error

	// Save inserts the order unless one already exists for its idempotency
	// token; the returned flag reports whether this call inserted the row.
	Save(ctx context.Context, o Order, tx *sql.Tx) (bool, error)
	FindByID(ctx context.Context, ID string, tx *sql.Tx) (Order, error)
	FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (Order, error)
	FindByIdempotencyToken(ctx context.Context, token string, tx *sql.Tx) (Order, error)
	FindByIdempotencyTokenForUpdate(ctx context.Context, token string, tx *sql.Tx) (Order, error)
	FindManyByBuyerID(ctx context.Context, buyerID int64, offset, limit int64, tx *sql.Tx) ([]Order, error)
	Count(ctx context.Context, buyerID int64, tx *sql.Tx) (int64, error)
	// UpdateStatus performs a guarded transition and reports whether the row
	// actually moved from the expected predecessor state.
	UpdateStatus(ctx context.Context, ID string, from, to Status, failureReason *string, tx *sql.Tx) (bool, error)
	FindManyStaleReserved(ctx context.Context, olderThan time.Time, limit int64, tx *sql.Tx) ([]Order, error)
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type orderRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewOrderRepository(logger *logrus.Logger, db *sql.DB) OrderRepository {
	return &orderRepository{
		logger: logger,
		db:     db,
	}
}

// BeginTx implements OrderRepository.
func (r *orderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to begin transaction")
	}

	return tx, nil
}

// CommitTx implements OrderRepository.
func (r *orderRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to commit transaction")
	}

	return nil
}

// Rollback implements OrderRepository.
func (r *orderRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to rollback transaction")
	}

	return nil
}

const orderColumns = `
	id, idempotency_token, buyer_id, ticket_type_id, quantity, unit_price,
	total_amount, status, failure_reason, created_at, updated_at
`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var data Order
	var failureReason sql.NullString

	err := row.Scan(
		&data.ID, &data.IdempotencyToken, &data.BuyerID, &data.TicketTypeID, &data.Quantity, &data.UnitPrice,
		&data.TotalAmount, &data.Status, &failureReason, &data.CreatedAt, &data.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}

	if failureReason.Valid {
		data.FailureReason = &failureReason.String
	}

	return data, nil
}

// Save implements OrderRepository. The unique index on idempotency_token is
// the single-writer-wins primitive: a concurrent duplicate insert blocks on
// the index until the winner commits, then reports no row inserted.
func (r *orderRepository) Save(ctx context.Context, o Order, tx *sql.Tx) (bool, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO ticket_order
		(
			id, idempotency_token, buyer_id, ticket_type_id, quantity, unit_price,
			total_amount, status, failure_reason, created_at, updated_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (idempotency_token) DO NOTHING
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving order's properties")
	}
	defer stmt.Close()

	var failureReason sql.NullString
	if o.FailureReason != nil {
		failureReason.Valid = true
		failureReason.String = *o.FailureReason
	}

	result, err := stmt.ExecContext(ctx,
		o.ID, o.IdempotencyToken, o.BuyerID, o.TicketTypeID, o.Quantity, o.UnitPrice,
		o.TotalAmount, o.Status, failureReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving order's properties")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving order's properties")
	}

	return affected == 1, nil
}

func (r *orderRepository) findOne(ctx context.Context, where, suffix string, arg interface{}, tx *sql.Tx) (Order, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ticket_order
		WHERE
			%s = $1
		%s
	`, orderColumns, where, suffix)

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Order{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting order's properties")
	}
	defer stmt.Close()

	data, err := scanOrder(stmt.QueryRowContext(ctx, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return Order{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order's properties with %s '%v' is not found", where, arg))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Order{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting order's properties")
	}

	return data, nil
}

// FindByID implements OrderRepository.
func (r *orderRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (Order, error) {
	return r.findOne(ctx, "id", "LIMIT 1", ID, tx)
}

// FindByIDForUpdate implements OrderRepository.
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (Order, error) {
	return r.findOne(ctx, "id", "FOR UPDATE", ID, tx)
}

// FindByIdempotencyToken implements OrderRepository.
func (r *orderRepository) FindByIdempotencyToken(ctx context.Context, token string, tx *sql.Tx) (Order, error) {
	return r.findOne(ctx, "idempotency_token", "LIMIT 1", token, tx)
}

// FindByIdempotencyTokenForUpdate implements OrderRepository. Locking the
// order row serializes two settlements replaying the same token.
func (r *orderRepository) FindByIdempotencyTokenForUpdate(ctx context.Context, token string, tx *sql.Tx) (Order, error) {
	return r.findOne(ctx, "idempotency_token", "FOR UPDATE", token, tx)
}

// FindManyByBuyerID implements OrderRepository.
func (r *orderRepository) FindManyByBuyerID(ctx context.Context, buyerID int64, offset, limit int64, tx *sql.Tx) ([]Order, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ticket_order
		WHERE
			buyer_id = $1
		ORDER BY created_at DESC
		OFFSET $2
		LIMIT $3
	`, orderColumns)

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, buyerID, offset, limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
	}

	defer rows.Close()

	var data = make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
		}

		data = append(data, o)
	}

	return data, nil
}

// Count implements OrderRepository.
func (r *orderRepository) Count(ctx context.Context, buyerID int64, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT count(id)
		FROM ticket_order
		WHERE
			buyer_id = $1
		LIMIT 1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while counting order's properties")
	}
	defer stmt.Close()

	var count int64
	if err := stmt.QueryRowContext(ctx, buyerID).Scan(&count); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while counting order's properties")
	}

	return count, nil
}

// UpdateStatus implements OrderRepository.
func (r *orderRepository) UpdateStatus(ctx context.Context, ID string, from, to Status, failureReason *string, tx *sql.Tx) (bool, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_order
		SET
			status = $1,
			failure_reason = COALESCE($2, failure_reason),
			updated_at = $3
		WHERE
			id = $4
		AND
			status = $5
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's status")
	}
	defer stmt.Close()

	var reason sql.NullString
	if failureReason != nil {
		reason.Valid = true
		reason.String = *failureReason
	}

	result, err := stmt.ExecContext(ctx, to, reason, time.Now(), ID, from)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's status")
	}

	return affected == 1, nil
}

// FindManyStaleReserved implements OrderRepository. SKIP LOCKED keeps the
// sweep from stalling behind a settlement that is still holding its row.
func (r *orderRepository) FindManyStaleReserved(ctx context.Context, olderThan time.Time, limit int64, tx *sql.Tx) ([]Order, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ticket_order
		WHERE
			status = $1
		AND
			updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, orderColumns)

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of stale reserved order's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, StatusReserved, olderThan, limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of stale reserved order's properties")
	}

	defer rows.Close()

	var data = make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of stale reserved order's properties")
		}

		data = append(data, o)
	}

	return data, nil
}
