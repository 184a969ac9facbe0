package ticket

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

// Issuer materializes the individual ticket records for a reserved order,
// exactly once per order.
type Issuer interface {
	Issue(ctx context.Context, o order.Order, tx *sql.Tx) ([]Ticket, error)
}

type issuer struct {
	logger           *logrus.Logger
	ticketRepository TicketRepository
}

type IssuerProperty struct {
	Logger           *logrus.Logger
	TicketRepository TicketRepository
}

func NewIssuer(props IssuerProperty) Issuer {
	return &issuer{
		logger:           props.Logger,
		ticketRepository: props.TicketRepository,
	}
}

var serialEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// generateSerialCode draws 20 bytes from the system CSPRNG, enough that a
// collision or a guessed code is cryptographically negligible.
func generateSerialCode() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return fmt.Sprintf("NPT-%s", serialEncoding.EncodeToString(raw)), nil
}

// Issue implements Issuer. If tickets already exist for the order the existing
// set is returned untouched; this is the second line of defense behind the
// order store's token dedup.
func (i *issuer) Issue(ctx context.Context, o order.Order, tx *sql.Tx) ([]Ticket, error) {
	if o.Status != order.StatusReserved {
		return nil, errors.New(http.StatusConflict, status.CONFLICT, fmt.Sprintf("order '%s' is not reserved", o.ID))
	}

	existing, err := i.ticketRepository.FindManyByOrderID(ctx, o.ID, tx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	now := time.Now()
	tickets := make([]Ticket, o.Quantity)
	for k := range tickets {
		serialCode, err := generateSerialCode()
		if err != nil {
			i.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusServiceUnavailable, status.ISSUANCE_FAILURE, "an error occurred while generating ticket's serial code")
		}

		tickets[k] = Ticket{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			TicketTypeID: o.TicketTypeID,
			OwnerID:      o.BuyerID,
			SerialCode:   serialCode,
			Status:       StatusValid,
			IssuedAt:     now,
		}
	}

	if err := i.ticketRepository.SaveMany(ctx, tickets, tx); err != nil {
		return nil, errors.New(http.StatusServiceUnavailable, status.ISSUANCE_FAILURE, "an error occurred while saving issued tickets")
	}

	return tickets, nil
}
