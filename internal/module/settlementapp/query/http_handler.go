package query

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	internalMiddleware "github.com/Draco1js/nexus-pass-sub001/internal/pkg/middleware"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	publicMiddleware "github.com/Draco1js/nexus-pass-sub001/pkg/middleware"
	"github.com/Draco1js/nexus-pass-sub001/pkg/response"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

type HTTPHandler struct {
	Validate     *validator.Validate
	QueryUseCase QueryUseCase
}

func InitHTTPHandler(router *mux.Router, customerSession *internalMiddleware.CustomerSession, validate *validator.Validate, queryUseCase QueryUseCase) {
	handler := &HTTPHandler{
		Validate:     validate,
		QueryUseCase: queryUseCase,
	}

	router.HandleFunc("/np-settlement/v1/settlementapp/ticket-types/{ticketTypeId}/availability", publicMiddleware.SetRouteChain(handler.GetAvailability)).Methods(http.MethodGet)
	router.HandleFunc("/np-settlement/v1/settlementapp/orders", publicMiddleware.SetRouteChain(handler.GetManyOrder, customerSession.Verify)).Methods(http.MethodGet)
	router.HandleFunc("/np-settlement/v1/settlementapp/tickets", publicMiddleware.SetRouteChain(handler.GetManyTicket, customerSession.Verify)).Methods(http.MethodGet)
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

func (handler HTTPHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ticketTypeID := mux.Vars(r)["ticketTypeId"]

	resp, err := handler.QueryUseCase.GetAvailability(ctx, ticketTypeID)
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
		Message: "ticket type's availability",
		Data:    resp,
	})

}

func (handler HTTPHandler) GetManyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	qs := r.URL.Query()

	req := GetManyOrderRequest{}
	req.Page, _ = strconv.ParseInt(qs.Get("page"), 10, 64)
	req.Size, _ = strconv.ParseInt(qs.Get("size"), 10, 64)

	if err := handler.validate(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: err.Error(),
		})

		return
	}

	resp, err := handler.QueryUseCase.GetManyOrder(ctx, req)
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
		Message: "list of orders",
		Data:    resp,
	})

}

func (handler HTTPHandler) GetManyTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	qs := r.URL.Query()

	req := GetManyTicketRequest{}
	req.Page, _ = strconv.ParseInt(qs.Get("page"), 10, 64)
	req.Size, _ = strconv.ParseInt(qs.Get("size"), 10, 64)

	if err := handler.validate(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: err.Error(),
		})

		return
	}

	resp, err := handler.QueryUseCase.GetManyTicket(ctx, req)
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
		Message: "list of tickets",
		Data:    resp,
	})

}
