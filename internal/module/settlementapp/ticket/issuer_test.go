package ticket

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type stubTicketRepository struct {
	tickets map[string][]Ticket
}

func (r *stubTicketRepository) SaveMany(ctx context.Context, tickets []Ticket, tx *sql.Tx) error {
	for _, t := range tickets {
		r.tickets[t.OrderID] = append(r.tickets[t.OrderID], t)
	}
	return nil
}

func (r *stubTicketRepository) FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]Ticket, error) {
	data := make([]Ticket, len(r.tickets[orderID]))
	copy(data, r.tickets[orderID])
	return data, nil
}

func (r *stubTicketRepository) FindManyByOwnerID(ctx context.Context, ownerID int64, offset, limit int64, tx *sql.Tx) ([]Ticket, error) {
	var data []Ticket
	for _, ts := range r.tickets {
		for _, t := range ts {
			if t.OwnerID == ownerID {
				data = append(data, t)
			}
		}
	}
	return data, nil
}

func newIssuerFixture() (Issuer, *stubTicketRepository) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := &stubTicketRepository{tickets: make(map[string][]Ticket)}
	issuer := NewIssuer(IssuerProperty{Logger: logger, TicketRepository: repo})

	return issuer, repo
}

func reservedOrder(quantity int64) order.Order {
	now := time.Now()
	return order.Order{
		ID:               "NPO-401",
		IdempotencyToken: "tok-issue-1",
		BuyerID:          42,
		TicketTypeID:     "TT-001",
		Quantity:         quantity,
		UnitPrice:        150000,
		TotalAmount:      150000 * quantity,
		Status:           order.StatusReserved,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestIssueMintsOneTicketPerSeat(t *testing.T) {
	issuer, repo := newIssuerFixture()
	o := reservedOrder(3)

	tickets, err := issuer.Issue(context.Background(), o, nil)
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	serials := map[string]bool{}
	for _, tk := range tickets {
		assert.NotEmpty(t, tk.ID)
		assert.Equal(t, o.ID, tk.OrderID)
		assert.Equal(t, o.TicketTypeID, tk.TicketTypeID)
		assert.Equal(t, o.BuyerID, tk.OwnerID)
		assert.Equal(t, StatusValid, tk.Status)
		assert.True(t, strings.HasPrefix(tk.SerialCode, "NPT-"))
		assert.Greater(t, len(tk.SerialCode), 20)
		serials[tk.SerialCode] = true
	}
	assert.Len(t, serials, 3)

	assert.Len(t, repo.tickets[o.ID], 3)
}

func TestIssueReturnsExistingSet(t *testing.T) {
	issuer, repo := newIssuerFixture()
	o := reservedOrder(2)

	first, err := issuer.Issue(context.Background(), o, nil)
	require.NoError(t, err)

	second, err := issuer.Issue(context.Background(), o, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, first, second)
	assert.Len(t, repo.tickets[o.ID], 2)
}

func TestIssueRejectsUnreservedOrder(t *testing.T) {
	issuer, repo := newIssuerFixture()

	for _, s := range []order.Status{order.StatusPending, order.StatusConfirmed, order.StatusFailed} {
		o := reservedOrder(2)
		o.Status = s

		_, err := issuer.Issue(context.Background(), o, nil)
		require.Error(t, err)
		assert.Equal(t, status.CONFLICT, errors.Destruct(err).Status)
	}

	assert.Empty(t, repo.tickets)
}
