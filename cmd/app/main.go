package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/Draco1js/nexus-pass-sub001/config"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/inventory"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/query"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/settlement"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/ticket"
	"github.com/Draco1js/nexus-pass-sub001/internal/pkg/jwt"
	internalMiddleware "github.com/Draco1js/nexus-pass-sub001/internal/pkg/middleware"
	"github.com/Draco1js/nexus-pass-sub001/internal/pkg/session"
	"github.com/Draco1js/nexus-pass-sub001/pkg/applogger"
	"github.com/Draco1js/nexus-pass-sub001/pkg/gctasks"
	"github.com/Draco1js/nexus-pass-sub001/pkg/kafka"
	"github.com/Draco1js/nexus-pass-sub001/pkg/middleware"
	"github.com/Draco1js/nexus-pass-sub001/pkg/monitoring"
	"github.com/Draco1js/nexus-pass-sub001/pkg/postgresql"
	"github.com/Draco1js/nexus-pass-sub001/pkg/pubsub"
	"github.com/Draco1js/nexus-pass-sub001/pkg/redis"
	"github.com/Draco1js/nexus-pass-sub001/pkg/server"
	"github.com/Draco1js/nexus-pass-sub001/pkg/validator"
)

var c *config.Config

func init() {
	c = config.Get()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := applogger.GetLogrus()

	mon := monitoring.NewOpenTelemetry(
		c.Application.Name,
		c.Application.Environment,
		c.GCP.ProjectID,
	)

	mon.Start(ctx)

	validate := validator.Get()

	jsonWebToken := jwt.NewJSONWebToken(c.JWT.PublicKey)

	psqldb := postgresql.GetDatabase()
	if err := psqldb.Ping(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}

	publisher := pubsub.PublisherFromConfluentKafkaProducer(logger, kafka.NewProducer())

	rc := redis.GetClient()
	if err := rc.Ping(context.Background()).Err(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}

	cloudTask := gctasks.NewGCTasks(logger, c.GCP.ProjectID, c.GCP.Location, c.GCP.ServiceAccount)

	sessionStore := session.NewRedisSessionStore(logger, rc)

	customerSessionMiddleware := internalMiddleware.NewCustomerSessionMiddleware(jsonWebToken, sessionStore)

	router := mux.NewRouter()
	router.Use(
		otelmux.Middleware(c.Application.Name),
		middleware.HTTPResponseTraceInjection,
		middleware.NewHTTPRequestLogger(logger, c.Application.Debug, http.StatusInternalServerError).Middleware,
	)

	ticketTypeRepo := inventory.NewTicketTypeRepository(logger, psqldb)
	orderRepo := order.NewOrderRepository(logger, psqldb)
	ticketRepo := ticket.NewTicketRepository(logger, psqldb)

	ledger := inventory.NewLedger(inventory.LedgerProperty{
		Logger:               logger,
		TicketTypeRepository: ticketTypeRepo,
	})
	orderStore := order.NewOrderStore(order.OrderStoreProperty{
		Logger:          logger,
		OrderRepository: orderRepo,
	})
	issuer := ticket.NewIssuer(ticket.IssuerProperty{
		Logger:           logger,
		TicketRepository: ticketRepo,
	})

	settlementUseCase := settlement.NewSettlementUseCase(settlement.SettlementUseCaseProperty{
		Logger:                 logger,
		Timeout:                c.Application.Timeout,
		BaseURL:                c.Application.BaseURL,
		ReservationGracePeriod: c.Settlement.ReservationGracePeriod,
		ReconcileBatchSize:     c.Settlement.ReconcileBatchSize,
		TicketTypeRepository:   ticketTypeRepo,
		Ledger:                 ledger,
		OrderRepository:        orderRepo,
		OrderStore:             orderStore,
		TicketRepository:       ticketRepo,
		Issuer:                 issuer,
		Publisher:              publisher,
		CloudTask:              cloudTask,
	})
	settlement.InitHTTPHandler(router, validate, settlementUseCase)

	queryUseCase := query.NewQueryUseCase(query.QueryUseCaseProperty{
		Logger:               logger,
		Timeout:              c.Application.Timeout,
		TicketTypeRepository: ticketTypeRepo,
		OrderRepository:      orderRepo,
		TicketRepository:     ticketRepo,
	})
	query.InitHTTPHandler(router, customerSessionMiddleware, validate, queryUseCase)

	handler := middleware.SetChain(
		router,
		cors.New(cors.Options{
			AllowedOrigins:   c.CORS.AllowedOrigins,
			AllowedMethods:   c.CORS.AllowedMethods,
			AllowedHeaders:   c.CORS.AllowedHeaders,
			ExposedHeaders:   c.CORS.ExposedHeaders,
			MaxAge:           c.CORS.MaxAge,
			AllowCredentials: c.CORS.AllowCredentials,
		}).Handler,
	)

	srv := &server.Server{
		Server: http.Server{
			Addr:    fmt.Sprintf(":%d", c.Application.Port),
			Handler: handler,
		},
		Logger: logger,
	}

	go func() {
		srv.ListenAndServe()
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	<-sigterm

	srv.Shutdown(ctx)
	publisher.Close()
	cloudTask.Close()
	psqldb.Close()
	rc.Close()
	mon.Stop(ctx)
}
