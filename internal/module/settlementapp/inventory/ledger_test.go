package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type stubTicketTypeRepository struct {
	ticketTypes map[string]TicketType
}

func (r *stubTicketTypeRepository) Save(ctx context.Context, tt TicketType, tx *sql.Tx) error {
	r.ticketTypes[tt.ID] = tt
	return nil
}

func (r *stubTicketTypeRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error) {
	tt, ok := r.ticketTypes[ID]
	if !ok {
		return TicketType{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type's properties with id '%s' is not found", ID))
	}
	return tt, nil
}

func (r *stubTicketTypeRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error) {
	return r.FindByID(ctx, ID, tx)
}

func (r *stubTicketTypeRepository) DecrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	tt := r.ticketTypes[ID]
	if tt.AvailableQuantity < quantity {
		return errors.New(http.StatusConflict, status.INSUFFICIENT_INVENTORY, "the requested quantity is no longer available")
	}
	tt.AvailableQuantity -= quantity
	r.ticketTypes[ID] = tt
	return nil
}

func (r *stubTicketTypeRepository) IncrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	tt := r.ticketTypes[ID]
	tt.AvailableQuantity += quantity
	if tt.AvailableQuantity > tt.TotalQuantity {
		tt.AvailableQuantity = tt.TotalQuantity
	}
	r.ticketTypes[ID] = tt
	return nil
}

func newLedgerFixture(tt TicketType) (Ledger, *stubTicketTypeRepository) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := &stubTicketTypeRepository{ticketTypes: map[string]TicketType{tt.ID: tt}}
	ledger := NewLedger(LedgerProperty{Logger: logger, TicketTypeRepository: repo})

	return ledger, repo
}

func onSaleTicketType(available int64) TicketType {
	now := time.Now()
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	return TicketType{
		ID:                "TT-001",
		EventID:           "EVT-001",
		Name:              "General Admission",
		Price:             150000,
		Currency:          "IDR",
		TotalQuantity:     10,
		AvailableQuantity: available,
		MinPerOrder:       1,
		MaxPerOrder:       4,
		SalesStartTime:    &start,
		SalesEndTime:      &end,
		IsActive:          true,
	}
}

func TestReserveDecrementsAvailability(t *testing.T) {
	ledger, repo := newLedgerFixture(onSaleTicketType(10))

	result, err := ledger.Reserve(context.Background(), "TT-001", 3, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.AvailableBefore)
	assert.Equal(t, int64(7), result.AvailableAfter)
	assert.Equal(t, int64(7), repo.ticketTypes["TT-001"].AvailableQuantity)
}

func TestReserveInsufficientInventory(t *testing.T) {
	ledger, repo := newLedgerFixture(onSaleTicketType(2))

	_, err := ledger.Reserve(context.Background(), "TT-001", 3, nil)
	require.Error(t, err)
	assert.Equal(t, status.INSUFFICIENT_INVENTORY, errors.Destruct(err).Status)
	assert.Equal(t, http.StatusConflict, errors.Destruct(err).HTTPStatusCode)

	assert.Equal(t, int64(2), repo.ticketTypes["TT-001"].AvailableQuantity)
}

func TestReserveOutsideSalesWindow(t *testing.T) {
	now := time.Now()

	closed := onSaleTicketType(10)
	end := now.Add(-time.Minute)
	closed.SalesEndTime = &end

	early := onSaleTicketType(10)
	start := now.Add(time.Hour)
	early.SalesStartTime = &start

	inactive := onSaleTicketType(10)
	inactive.IsActive = false

	for name, tt := range map[string]TicketType{"ended": closed, "not started": early, "inactive": inactive} {
		t.Run(name, func(t *testing.T) {
			ledger, repo := newLedgerFixture(tt)

			_, err := ledger.Reserve(context.Background(), "TT-001", 1, nil)
			require.Error(t, err)
			assert.Equal(t, status.SALES_WINDOW_CLOSED, errors.Destruct(err).Status)
			assert.Equal(t, http.StatusGone, errors.Destruct(err).HTTPStatusCode)
			assert.Equal(t, int64(10), repo.ticketTypes["TT-001"].AvailableQuantity)
		})
	}
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	ledger, repo := newLedgerFixture(onSaleTicketType(10))

	for _, quantity := range []int64{0, -1} {
		_, err := ledger.Reserve(context.Background(), "TT-001", quantity, nil)
		require.Error(t, err)
		assert.Equal(t, status.INVALID_QUANTITY, errors.Destruct(err).Status)
	}

	assert.Equal(t, int64(10), repo.ticketTypes["TT-001"].AvailableQuantity)
}

func TestReleaseClampsToTotal(t *testing.T) {
	ledger, repo := newLedgerFixture(onSaleTicketType(8))

	require.NoError(t, ledger.Release(context.Background(), "TT-001", 2, nil))
	assert.Equal(t, int64(10), repo.ticketTypes["TT-001"].AvailableQuantity)

	// A duplicate release never pushes availability past the total.
	require.NoError(t, ledger.Release(context.Background(), "TT-001", 2, nil))
	assert.Equal(t, int64(10), repo.ticketTypes["TT-001"].AvailableQuantity)
}

func TestReleaseRejectsNonPositiveQuantity(t *testing.T) {
	ledger, _ := newLedgerFixture(onSaleTicketType(10))

	err := ledger.Release(context.Background(), "TT-001", 0, nil)
	require.Error(t, err)
	assert.Equal(t, status.INVALID_QUANTITY, errors.Destruct(err).Status)
}

func TestSalesWindowOpenBoundaries(t *testing.T) {
	now := time.Now()
	tt := onSaleTicketType(10)

	assert.True(t, tt.SalesWindowOpen(now))
	assert.True(t, tt.SalesWindowOpen(*tt.SalesStartTime))
	assert.False(t, tt.SalesWindowOpen(*tt.SalesEndTime))

	open := onSaleTicketType(10)
	open.SalesStartTime = nil
	open.SalesEndTime = nil
	assert.True(t, open.SalesWindowOpen(now))
}
