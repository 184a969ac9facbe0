package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	publicMiddleware "github.com/Draco1js/nexus-pass-sub001/pkg/middleware"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/response"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type HTTPHandler struct {
	Validate          *validator.Validate
	SettlementUseCase SettlementUseCase
}

func InitHTTPHandler(router *mux.Router, validate *validator.Validate, settlementUseCase SettlementUseCase) {
	handler := &HTTPHandler{
		Validate:          validate,
		SettlementUseCase: settlementUseCase,
	}

	router.HandleFunc("/np-settlement/v1/settlementapp/settlements/on-payment-completed", publicMiddleware.SetRouteChain(handler.OnPaymentCompleted)).Methods(http.MethodPost)
	router.HandleFunc("/np-settlement/v1/settlementapp/settlements/on-reconcile", publicMiddleware.SetRouteChain(handler.OnReconcileOrder)).Methods(http.MethodPost)
	router.HandleFunc("/np-settlement/v1/settlementapp/settlements/reconcile-stale", publicMiddleware.SetRouteChain(handler.ReconcileStale)).Methods(http.MethodPost)
}

func (handler HTTPHandler) validate(ctx context.Context, payload interface{}) error {
	err := handler.Validate.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}

	errorFields := err.(validator.ValidationErrors)

	errMessages := make([]string, len(errorFields))

	for k, errorField := range errorFields {
		errMessages[k] = fmt.Sprintf("invalid '%s' with value '%v'", errorField.Field(), errorField.Value())
	}

	return fmt.Errorf(strings.Join(errMessages, ", "))
}

func (handler HTTPHandler) OnPaymentCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	e := PaymentCompletedEvent{}
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})

		return
	}

	if e.TransactionStatus != "settlement" {
		response.JSON(w, http.StatusOK, response.RESTEnvelope{
			Status:  status.OK,
			Message: "payment notification has been ignored",
		})

		return
	}

	req := CompleteRequest{
		IdempotencyToken: e.CustomerSessionToken,
		TicketTypeID:     e.TicketTypeID,
		BuyerID:          e.BuyerID,
		Quantity:         e.Quantity,
	}

	if err := handler.validate(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: err.Error(),
		})

		return
	}

	resp, err := handler.SettlementUseCase.Complete(ctx, req)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}
	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "payment has been settled into issued tickets",
		Data:    resp,
		Meta:    nil,
	})

}

func (handler HTTPHandler) OnReconcileOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	e := ReconcileOrderEvent{}
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})

		return
	}

	if err := handler.SettlementUseCase.OnReconcileOrder(ctx, e); err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}
	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "order's reservation has been reconciled",
	})

}

func (handler HTTPHandler) ReconcileStale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := handler.SettlementUseCase.ReconcileStaleReservations(ctx)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}
	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "stale reservations have been reconciled",
		Data:    resp,
	})

}
