package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/inventory"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/order"
	"github.com/Draco1js/nexus-pass-sub001/internal/module/settlementapp/ticket"
	"github.com/Draco1js/nexus-pass-sub001/pkg/errors"
	"github.com/Draco1js/nexus-pass-sub001/pkg/gctasks"
	"github.com/Draco1js/nexus-pass-sub001/pkg/status"
)

// rowLocks emulates row-level FOR UPDATE locking. Each transaction token owns
// the per-row mutexes it acquired until commit or rollback releases them, so
// the blocking behavior of concurrent settlements matches the database.
type rowLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	held  map[*sql.Tx]map[string]*sync.Mutex
}

func newRowLocks() *rowLocks {
	return &rowLocks{
		locks: make(map[string]*sync.Mutex),
		held:  make(map[*sql.Tx]map[string]*sync.Mutex),
	}
}

func (l *rowLocks) lockFor(tx *sql.Tx, key string) (*sync.Mutex, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[tx][key]; ok {
		return nil, false
	}

	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}

	return m, true
}

func (l *rowLocks) record(tx *sql.Tx, key string, m *sync.Mutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[tx] == nil {
		l.held[tx] = make(map[string]*sync.Mutex)
	}
	l.held[tx][key] = m
}

func (l *rowLocks) acquire(tx *sql.Tx, key string) {
	if tx == nil {
		return
	}

	m, fresh := l.lockFor(tx, key)
	if !fresh {
		return
	}

	m.Lock()
	l.record(tx, key, m)
}

func (l *rowLocks) tryAcquire(tx *sql.Tx, key string) bool {
	if tx == nil {
		return false
	}

	m, fresh := l.lockFor(tx, key)
	if !fresh {
		return true
	}

	if !m.TryLock() {
		return false
	}

	l.record(tx, key, m)
	return true
}

func (l *rowLocks) releaseAll(tx *sql.Tx) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.held[tx] {
		m.Unlock()
	}
	delete(l.held, tx)
}

// memoryStore is the shared backing state of the fake repositories. Writes are
// applied in place; the flows under test only roll back transactions that did
// not mutate anything.
type memoryStore struct {
	mu          sync.Mutex
	locks       *rowLocks
	ticketTypes map[string]inventory.TicketType
	orders      map[string]order.Order
	tokens      map[string]string
	tickets     map[string][]ticket.Ticket
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		locks:       newRowLocks(),
		ticketTypes: make(map[string]inventory.TicketType),
		orders:      make(map[string]order.Order),
		tokens:      make(map[string]string),
		tickets:     make(map[string][]ticket.Ticket),
	}
}

func (s *memoryStore) putTicketType(tt inventory.TicketType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketTypes[tt.ID] = tt
}

func (s *memoryStore) ticketType(ID string) inventory.TicketType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketTypes[ID]
}

func (s *memoryStore) order(ID string) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[ID]
	return o, ok
}

func (s *memoryStore) orderByToken(token string) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ID, ok := s.tokens[token]
	if !ok {
		return order.Order{}, false
	}
	return s.orders[ID], true
}

func (s *memoryStore) ageOrder(ID string, age time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[ID]
	o.UpdatedAt = o.UpdatedAt.Add(-age)
	s.orders[ID] = o
}

type fakeTicketTypeRepository struct {
	s *memoryStore
}

func (r *fakeTicketTypeRepository) Save(ctx context.Context, tt inventory.TicketType, tx *sql.Tx) error {
	r.s.putTicketType(tt)
	return nil
}

func (r *fakeTicketTypeRepository) find(ID string) (inventory.TicketType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tt, ok := r.s.ticketTypes[ID]
	if !ok {
		return inventory.TicketType{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type's properties with id '%s' is not found", ID))
	}

	return tt, nil
}

func (r *fakeTicketTypeRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (inventory.TicketType, error) {
	return r.find(ID)
}

func (r *fakeTicketTypeRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (inventory.TicketType, error) {
	r.s.locks.acquire(tx, "ticket_type:"+ID)
	return r.find(ID)
}

func (r *fakeTicketTypeRepository) DecrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tt, ok := r.s.ticketTypes[ID]
	if !ok || tt.AvailableQuantity < quantity {
		return errors.New(http.StatusConflict, status.INSUFFICIENT_INVENTORY, "the requested quantity is no longer available")
	}

	tt.AvailableQuantity -= quantity
	tt.UpdatedAt = time.Now()
	r.s.ticketTypes[ID] = tt

	return nil
}

func (r *fakeTicketTypeRepository) IncrementAvailable(ctx context.Context, ID string, quantity int64, tx *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tt, ok := r.s.ticketTypes[ID]
	if !ok {
		return errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type's properties with id '%s' is not found", ID))
	}

	tt.AvailableQuantity += quantity
	if tt.AvailableQuantity > tt.TotalQuantity {
		tt.AvailableQuantity = tt.TotalQuantity
	}
	tt.UpdatedAt = time.Now()
	r.s.ticketTypes[ID] = tt

	return nil
}

type fakeOrderRepository struct {
	s *memoryStore
}

func (r *fakeOrderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return new(sql.Tx), nil
}

func (r *fakeOrderRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	r.s.locks.releaseAll(tx)
	return nil
}

func (r *fakeOrderRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	r.s.locks.releaseAll(tx)
	return nil
}

func (r *fakeOrderRepository) Save(ctx context.Context, o order.Order, tx *sql.Tx) (bool, error) {
	r.s.locks.acquire(tx, "order:"+o.IdempotencyToken)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tokens[o.IdempotencyToken]; ok {
		return false, nil
	}

	r.s.tokens[o.IdempotencyToken] = o.ID
	r.s.orders[o.ID] = o

	return true, nil
}

func notFoundOrder(where string, arg interface{}) error {
	return errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order's properties with %s '%v' is not found", where, arg))
}

func (r *fakeOrderRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (order.Order, error) {
	o, ok := r.s.order(ID)
	if !ok {
		return order.Order{}, notFoundOrder("id", ID)
	}
	return o, nil
}

func (r *fakeOrderRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (order.Order, error) {
	o, ok := r.s.order(ID)
	if !ok {
		return order.Order{}, notFoundOrder("id", ID)
	}

	// One mutex per order row regardless of which column found it, so a
	// settlement locking by id contends with one locking by token.
	r.s.locks.acquire(tx, "order:"+o.IdempotencyToken)

	o, _ = r.s.order(ID)
	return o, nil
}

func (r *fakeOrderRepository) FindByIdempotencyToken(ctx context.Context, token string, tx *sql.Tx) (order.Order, error) {
	o, ok := r.s.orderByToken(token)
	if !ok {
		return order.Order{}, notFoundOrder("idempotency_token", token)
	}
	return o, nil
}

func (r *fakeOrderRepository) FindByIdempotencyTokenForUpdate(ctx context.Context, token string, tx *sql.Tx) (order.Order, error) {
	// Acquired even when no row exists yet, standing in for the unique index
	// lock that serializes two first-time inserts of the same token.
	r.s.locks.acquire(tx, "order:"+token)

	o, ok := r.s.orderByToken(token)
	if !ok {
		return order.Order{}, notFoundOrder("idempotency_token", token)
	}
	return o, nil
}

func (r *fakeOrderRepository) FindManyByBuyerID(ctx context.Context, buyerID int64, offset, limit int64, tx *sql.Tx) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var data []order.Order
	for _, o := range r.s.orders {
		if o.BuyerID == buyerID {
			data = append(data, o)
		}
	}
	sort.Slice(data, func(i, j int) bool { return data[i].CreatedAt.After(data[j].CreatedAt) })

	if offset >= int64(len(data)) {
		return []order.Order{}, nil
	}
	data = data[offset:]
	if limit < int64(len(data)) {
		data = data[:limit]
	}

	return data, nil
}

func (r *fakeOrderRepository) Count(ctx context.Context, buyerID int64, tx *sql.Tx) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var count int64
	for _, o := range r.s.orders {
		if o.BuyerID == buyerID {
			count++
		}
	}
	return count, nil
}

func (r *fakeOrderRepository) UpdateStatus(ctx context.Context, ID string, from, to order.Status, failureReason *string, tx *sql.Tx) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[ID]
	if !ok || o.Status != from {
		return false, nil
	}

	o.Status = to
	if failureReason != nil {
		o.FailureReason = failureReason
	}
	o.UpdatedAt = time.Now()
	r.s.orders[ID] = o

	return true, nil
}

func (r *fakeOrderRepository) FindManyStaleReserved(ctx context.Context, olderThan time.Time, limit int64, tx *sql.Tx) ([]order.Order, error) {
	r.s.mu.Lock()
	var candidates []order.Order
	for _, o := range r.s.orders {
		if o.Status == order.StatusReserved && o.UpdatedAt.Before(olderThan) {
			candidates = append(candidates, o)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt) })

	var data = make([]order.Order, 0)
	for _, o := range candidates {
		if int64(len(data)) >= limit {
			break
		}
		// SKIP LOCKED: rows held by a live settlement are passed over.
		if !r.s.locks.tryAcquire(tx, "order:"+o.IdempotencyToken) {
			continue
		}
		current, ok := r.s.order(o.ID)
		if !ok || current.Status != order.StatusReserved || !current.UpdatedAt.Before(olderThan) {
			continue
		}
		data = append(data, current)
	}

	return data, nil
}

type fakeTicketRepository struct {
	s *memoryStore

	mu      sync.Mutex
	saveErr error
}

func (r *fakeTicketRepository) failSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func (r *fakeTicketRepository) SaveMany(ctx context.Context, tickets []ticket.Ticket, tx *sql.Tx) error {
	r.mu.Lock()
	saveErr := r.saveErr
	r.mu.Unlock()
	if saveErr != nil {
		return saveErr
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range tickets {
		r.s.tickets[t.OrderID] = append(r.s.tickets[t.OrderID], t)
	}

	return nil
}

func (r *fakeTicketRepository) FindManyByOrderID(ctx context.Context, orderID string, tx *sql.Tx) ([]ticket.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	data := make([]ticket.Ticket, len(r.s.tickets[orderID]))
	copy(data, r.s.tickets[orderID])

	return data, nil
}

func (r *fakeTicketRepository) FindManyByOwnerID(ctx context.Context, ownerID int64, offset, limit int64, tx *sql.Tx) ([]ticket.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var data []ticket.Ticket
	for _, ts := range r.s.tickets {
		for _, t := range ts {
			if t.OwnerID == ownerID {
				data = append(data, t)
			}
		}
	}
	sort.Slice(data, func(i, j int) bool { return data[i].ID < data[j].ID })

	if offset >= int64(len(data)) {
		return []ticket.Ticket{}, nil
	}
	data = data[offset:]
	if limit < int64(len(data)) {
		data = data[:limit]
	}

	return data, nil
}

type publishedMessage struct {
	Topic string
	Key   string
	Value []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key string, headers map[string]string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{Topic: topic, Key: key, Value: value})
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	data := make([]publishedMessage, len(p.messages))
	copy(data, p.messages)
	return data
}

type deferredTask struct {
	QueueID  string
	Request  gctasks.Request
	Duration time.Duration
}

type fakeTaskClient struct {
	mu    sync.Mutex
	tasks []deferredTask
}

func (c *fakeTaskClient) CreateQueue(id string) error { return nil }

func (c *fakeTaskClient) Close() error { return nil }

func (c *fakeTaskClient) CreateTask(queueID string, request gctasks.Request) error {
	return c.DeferCreateTaskInDuration(queueID, request, 0)
}

func (c *fakeTaskClient) DeferCreateTaskInDuration(queueID string, request gctasks.Request, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, deferredTask{QueueID: queueID, Request: request, Duration: duration})
	return nil
}

func (c *fakeTaskClient) DeferCreateTaskInTime(queueID string, request gctasks.Request, schedule time.Time) error {
	return c.DeferCreateTaskInDuration(queueID, request, time.Until(schedule))
}

func (c *fakeTaskClient) deferred() []deferredTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := make([]deferredTask, len(c.tasks))
	copy(data, c.tasks)
	return data
}

type settlementFixture struct {
	useCase    SettlementUseCase
	store      *memoryStore
	ticketRepo *fakeTicketRepository
	publisher  *fakePublisher
	taskClient *fakeTaskClient
}

func newSettlementFixture(gracePeriod time.Duration) *settlementFixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := newMemoryStore()
	ticketTypeRepo := &fakeTicketTypeRepository{s: store}
	orderRepo := &fakeOrderRepository{s: store}
	ticketRepo := &fakeTicketRepository{s: store}
	publisher := &fakePublisher{}
	taskClient := &fakeTaskClient{}

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

	useCase := NewSettlementUseCase(SettlementUseCaseProperty{
		Logger:                 logger,
		Timeout:                30 * time.Second,
		BaseURL:                "http://localhost:9000",
		ReservationGracePeriod: gracePeriod,
		ReconcileBatchSize:     10,
		TicketTypeRepository:   ticketTypeRepo,
		Ledger:                 ledger,
		OrderRepository:        orderRepo,
		OrderStore:             orderStore,
		TicketRepository:       ticketRepo,
		Issuer:                 issuer,
		Publisher:              publisher,
		CloudTask:              taskClient,
	})

	return &settlementFixture{
		useCase:    useCase,
		store:      store,
		ticketRepo: ticketRepo,
		publisher:  publisher,
		taskClient: taskClient,
	}
}
