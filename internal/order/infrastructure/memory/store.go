// Package memory keeps customers, products, orders and outbox rows in
// process. Transactions hold the store lock and restore a snapshot on error.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-placement/internal/order/application"
	"github.com/dmehra2102/order-placement/internal/order/domain"
	"github.com/dmehra2102/order-placement/pkg/outbox"
)

type Store struct {
	mu        sync.Mutex
	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order
	events    []outbox.Event
	nextEvent int64
}

func NewStore() *Store {
	return &Store{
		customers: map[string]domain.Customer{},
		products:  map[string]domain.Product{},
		orders:    map[string]domain.Order{},
	}
}

func (s *Store) SeedCustomers(customers ...domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range customers {
		s.customers[c.ID] = c
	}
}

func (s *Store) SeedProducts(products ...domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = p
	}
}

func (s *Store) FindCustomerByID(_ context.Context, id string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) FindProductsByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

// Events returns a copy of every outbox row.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.PlacementTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := maps.Clone(s.products)
	orders := maps.Clone(s.orders)
	events := slices.Clone(s.events)
	nextEvent := s.nextEvent

	if err := fn(ctx, &tx{s: s}); err != nil {
		s.products = products
		s.orders = orders
		s.events = events
		s.nextEvent = nextEvent
		return err
	}
	return nil
}

// tx runs with Store.mu held.
type tx struct {
	s *Store
}

func (t *tx) UpdateProductQuantities(_ context.Context, updates []domain.StockUpdate) error {
	for _, u := range updates {
		p, ok := t.s.products[u.ProductID]
		if !ok {
			return fmt.Errorf("product %s: %w", u.ProductID, domain.ErrNotFound)
		}
		if p.Quantity != u.Expected {
			return fmt.Errorf("product %s: %w", u.ProductID, domain.ErrStockConflict)
		}
		p.Quantity = u.Quantity
		t.s.products[u.ProductID] = p
	}
	return nil
}

func (t *tx) CreateOrder(_ context.Context, customer domain.Customer, items []domain.OrderItem) (domain.Order, error) {
	stored := make([]domain.OrderItem, len(items))
	for i, item := range items {
		item.ID = uuid.NewString()
		stored[i] = item
	}
	o := domain.NewOrder(uuid.NewString(), customer.ID, stored)
	t.s.orders[o.ID] = o

	o.Items = slices.Clone(stored)
	return o, nil
}

func (t *tx) AppendEvent(_ context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	t.s.nextEvent++
	t.s.events = append(t.s.events, outbox.Event{
		ID:            t.s.nextEvent,
		AggregateType: "order",
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       slices.Clone(payload),
		Headers:       maps.Clone(headers),
		Traceparent:   traceparent,
		CreatedAt:     time.Now().UTC(),
		Status:        outbox.StatusPending,
	})
	return nil
}
