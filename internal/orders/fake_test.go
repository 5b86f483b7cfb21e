package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-tiered-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-tiered-orders/internal/kafka"
	"github.com/ariefcatur/go-tiered-orders/internal/pricing"
)

var errDisk = errors.New("disk on fire")

type memState struct {
	buyers     map[string]Buyer // by id
	orders     map[string]Order // by id, without items
	items      map[string][]LineItem
	deliveries map[string]Delivery
}

func (s memState) clone() memState {
	c := memState{
		buyers:     make(map[string]Buyer, len(s.buyers)),
		orders:     make(map[string]Order, len(s.orders)),
		items:      make(map[string][]LineItem, len(s.items)),
		deliveries: make(map[string]Delivery, len(s.deliveries)),
	}
	for k, v := range s.buyers {
		c.buyers[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]LineItem(nil), v...)
	}
	for k, v := range s.deliveries {
		c.deliveries[k] = v
	}
	return c
}

// memStore runs transactions one at a time against a copy of the state and
// swaps it in on commit, so a failed fn leaves nothing behind.
type memStore struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state memState

	// failOn maps a TxStore method name (or "commit") to the error it returns.
	failOn map[string]error
}

func newMemStore(buyers ...Buyer) *memStore {
	s := &memStore{
		state: memState{
			buyers:     map[string]Buyer{},
			orders:     map[string]Order{},
			items:      map[string][]LineItem{},
			deliveries: map[string]Delivery{},
		},
		failOn: map[string]error{},
	}
	for _, b := range buyers {
		s.state.buyers[b.ID] = b
	}
	return s
}

func (s *memStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[op] = err
}

func (s *memStore) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[op]; err != nil {
		return persistErr(op, err)
	}
	return nil
}

func (s *memStore) snapshot() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memStore) buyer(id string) Buyer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.buyers[id]
}

func (s *memStore) FindBuyerByEmail(ctx context.Context, email string) (Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.state.buyers {
		if b.Email == email {
			return b, nil
		}
	}
	return Buyer{}, fmt.Errorf("%w: %s", ErrBuyerNotFound, email)
}

func (st memState) full(id string) (Order, bool) {
	o, ok := st.orders[id]
	if !ok {
		return Order{}, false
	}
	o.Delivery = st.deliveries[o.Delivery.ID]
	o.Items = append([]LineItem(nil), st.items[id]...)
	return o, true
}

func (s *memStore) FindOrderByExternalID(ctx context.Context, externalID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.state.orders {
		if o.ExternalID == externalID {
			full, _ := s.state.full(id)
			return full, nil
		}
	}
	return Order{}, fmt.Errorf("%w: external_id %s", ErrOrderNotFound, externalID)
}

func (s *memStore) GetOrder(ctx context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.full(orderID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

func (s *memStore) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for id, o := range s.state.orders {
		if o.BuyerID == buyerID {
			full, _ := s.state.full(id)
			out = append(out, full)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListOrders only honours created_at/total_cents sorting, enough for service tests.
func (s *memStore) ListOrders(ctx context.Context, q ListQuery) ([]AdminRow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []AdminRow
	for id, o := range s.state.orders {
		if q.Keyword != "" && !strings.Contains(strings.ToLower(o.BuyerEmail), strings.ToLower(q.Keyword)) {
			continue
		}
		full, _ := s.state.full(id)
		b := s.state.buyers[o.BuyerID]
		all = append(all, AdminRow{Order: full, BuyerName: b.Name, BuyerPhone: b.Phone, BuyerTier: b.Tier})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].Order, all[j].Order
		less := a.CreatedAt.Before(b.CreatedAt)
		if q.column == "o.total_cents" {
			less = a.TotalCents < b.TotalCents
		}
		if q.desc {
			return !less
		}
		return less
	})
	total := len(all)
	from := q.Page * q.Size
	if from > total {
		from = total
	}
	to := from + q.Size
	if to > total {
		to = total
	}
	return all[from:to], total, nil
}

func (s *memStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s, st: s.snapshot()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.failure("commit"); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = tx.st
	s.mu.Unlock()
	return nil
}

type memTx struct {
	store *memStore
	st    memState
}

func (t *memTx) CreateDelivery(ctx context.Context, d *Delivery) error {
	if err := t.store.failure("CreateDelivery"); err != nil {
		return err
	}
	t.st.deliveries[d.ID] = *d
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, o *Order) error {
	if err := t.store.failure("CreateOrder"); err != nil {
		return err
	}
	if o.ExternalID != "" {
		for _, existing := range t.st.orders {
			if existing.ExternalID == o.ExternalID {
				return fmt.Errorf("%w: external_id %s", ErrDuplicateOrder, o.ExternalID)
			}
		}
	}
	row := *o
	row.Items = nil
	t.st.orders[o.ID] = row
	return nil
}

func (t *memTx) CreateLineItem(ctx context.Context, li *LineItem) error {
	if err := t.store.failure("CreateLineItem"); err != nil {
		return err
	}
	t.st.items[li.OrderID] = append(t.st.items[li.OrderID], *li)
	return nil
}

func (t *memTx) SumPlacedTotals(ctx context.Context, buyerID string) (int64, error) {
	if err := t.store.failure("SumPlacedTotals"); err != nil {
		return 0, err
	}
	var sum int64
	for _, o := range t.st.orders {
		if o.BuyerID == buyerID && o.Status == StatusPlaced {
			sum += o.TotalCents
		}
	}
	return sum, nil
}

func (t *memTx) UpdateBuyerTier(ctx context.Context, buyerID string, tier pricing.Tier) error {
	if err := t.store.failure("UpdateBuyerTier"); err != nil {
		return err
	}
	b, ok := t.st.buyers[buyerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBuyerNotFound, buyerID)
	}
	b.Tier = tier
	t.st.buyers[buyerID] = b
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, orderID string) (Order, error) {
	o, ok := t.st.full(orderID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, orderID string, status Status) error {
	if err := t.store.failure("UpdateOrderStatus"); err != nil {
		return err
	}
	o := t.st.orders[orderID]
	o.Status = status
	t.st.orders[orderID] = o
	return nil
}

func (t *memTx) UpdateDeliveryStatus(ctx context.Context, deliveryID string, status DeliveryStatus) error {
	d := t.st.deliveries[deliveryID]
	d.Status = status
	t.st.deliveries[deliveryID] = d
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, orderID string) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	delete(t.st.orders, orderID)
	delete(t.st.items, orderID)
	delete(t.st.deliveries, o.Delivery.ID)
	return nil
}

type memCatalog struct {
	products map[string]Product
}

func (c *memCatalog) FindProduct(ctx context.Context, productID string) (Product, error) {
	p, ok := c.products[productID]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return p, nil
}

// memStock mimics the Guard: check-and-decrement under one mutex, with
// per-product failure injection.
type memStock struct {
	mu          sync.Mutex
	stock       map[string]int
	failReserve map[string]error
	failRestore map[string]error
	reserves    int
	restores    int
}

func newMemStock(stock map[string]int) *memStock {
	return &memStock{stock: stock, failReserve: map[string]error{}, failRestore: map[string]error{}}
}

func (m *memStock) Reserve(ctx context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failReserve[productID]; err != nil {
		return err
	}
	n, ok := m.stock[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if n < qty {
		return &inventory.ShortageError{ProductID: productID, Requested: qty, Available: n}
	}
	m.stock[productID] = n - qty
	m.reserves++
	return nil
}

func (m *memStock) Restore(ctx context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failRestore[productID]; err != nil {
		return err
	}
	m.stock[productID] += qty
	m.restores++
	return nil
}

func (m *memStock) get(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}

type published struct {
	topic string
	key   string
	env   Envelope
}

type memPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *memPublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	var env Envelope
	_ = kafkax.UnmarshalEnvelope(value, &env)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), env: env})
}

func (p *memPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}
