package inventory

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

type TicketTypeRepository interface {
	Save(ctx context.Context, tt TicketType, tx *sql.Tx) error
	FindByID(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error)
	FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error)
	DecrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error
	IncrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type ticketTypeRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewTicketTypeRepository(logger *logrus.Logger, db *sql.DB) TicketTypeRepository {
	return &ticketTypeRepository{
		logger: logger,
		db:     db,
	}
}

const ticketTypeColumns = `
	id, event_id, name, price, currency, total_quantity, available_quantity,
	min_per_order, max_per_order, sales_start_time, sales_end_time, is_active,
	created_at, updated_at
`

func (r *ticketTypeRepository) scan(row *sql.Row) (TicketType, error) {
	var data TicketType
	var salesStartTime sql.NullTime
	var salesEndTime sql.NullTime

	err := row.Scan(
		&data.ID, &data.EventID, &data.Name, &data.Price, &data.Currency, &data.TotalQuantity, &data.AvailableQuantity,
		&data.MinPerOrder, &data.MaxPerOrder, &salesStartTime, &salesEndTime, &data.IsActive,
		&data.CreatedAt, &data.UpdatedAt,
	)
	if err != nil {
		return TicketType{}, err
	}

	if salesStartTime.Valid {
		data.SalesStartTime = &salesStartTime.Time
	}
	if salesEndTime.Valid {
		data.SalesEndTime = &salesEndTime.Time
	}

	return data, nil
}

// Save implements TicketTypeRepository.
func (r *ticketTypeRepository) Save(ctx context.Context, tt TicketType, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO ticket_type
		(
			id, event_id, name, price, currency, total_quantity, available_quantity,
			min_per_order, max_per_order, sales_start_time, sales_end_time, is_active,
			created_at, updated_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket type's properties")
	}
	defer stmt.Close()

	var salesStartTime sql.NullTime
	var salesEndTime sql.NullTime

	if tt.SalesStartTime != nil {
		salesStartTime.Valid = true
		salesStartTime.Time = *tt.SalesStartTime
	}
	if tt.SalesEndTime != nil {
		salesEndTime.Valid = true
		salesEndTime.Time = *tt.SalesEndTime
	}

	_, err = stmt.ExecContext(ctx,
		tt.ID, tt.EventID, tt.Name, tt.Price, tt.Currency, tt.TotalQuantity, tt.AvailableQuantity,
		tt.MinPerOrder, tt.MaxPerOrder, salesStartTime, salesEndTime, tt.IsActive,
		tt.CreatedAt, tt.UpdatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket type's properties")
	}

	return nil
}

// FindByID implements TicketTypeRepository.
func (r *ticketTypeRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ticket_type
		WHERE
			id = $1
		LIMIT 1
	`, ticketTypeColumns)

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketType{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket type's properties")
	}
	defer stmt.Close()

	data, err := r.scan(stmt.QueryRowContext(ctx, ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return TicketType{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type's properties with id '%s' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketType{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket type's properties")
	}

	return data, nil
}

// FindByIDForUpdate implements TicketTypeRepository. The row lock serializes
// concurrent reservations against the same ticket type; unrelated ticket
// types never contend.
func (r *ticketTypeRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ticket_type
		WHERE
			id = $1
		FOR UPDATE
	`, ticketTypeColumns)

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketType{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket type's properties for update")
	}
	defer stmt.Close()

	data, err := r.scan(stmt.QueryRowContext(ctx, ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return TicketType{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type's properties with id '%s' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketType{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket type's properties for update")
	}

	return data, nil
}

// DecrementAvailable implements TicketTypeRepository. The condition re-checks
// availability so the counter can never go negative even outside a row lock.
func (r *ticketTypeRepository) DecrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_type
		SET
			available_quantity = available_quantity - $1,
			updated_at = $2
		WHERE
			id = $3
		AND
			available_quantity >= $1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while decrementing ticket type's available quantity")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, quantity, time.Now(), ID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while decrementing ticket type's available quantity")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while decrementing ticket type's available quantity")
	}

	if affected == 0 {
		return errors.New(http.StatusConflict, status.INSUFFICIENT_INVENTORY, "the requested quantity is no longer available")
	}

	return nil
}

// IncrementAvailable implements TicketTypeRepository. The increment is clamped
// to total_quantity to guard against a double release.
func (r *ticketTypeRepository) IncrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_type
		SET
			available_quantity = LEAST(total_quantity, available_quantity + $1),
			updated_at = $2
		WHERE
			id = $3
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while incrementing ticket type's available quantity")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, quantity, time.Now(), ID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while incrementing ticket type's available quantity")
	}

	return nil
}
