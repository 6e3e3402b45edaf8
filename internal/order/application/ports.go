package application

import (
	"context"
	"time"

	"github.com/dmehra2102/order-placement/internal/order/domain"
)

type CustomerFinder interface {
	// FindCustomerByID returns domain.ErrNotFound when the customer does not exist.
	FindCustomerByID(ctx context.Context, id string) (domain.Customer, error)
}

type ProductFinder interface {
	// FindProductsByIDs returns the products that exist and silently omits the rest.
	FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

type StockUpdater interface {
	// UpdateProductQuantities applies every update or none. A stored quantity
	// that no longer matches StockUpdate.Expected yields domain.ErrStockConflict.
	UpdateProductQuantities(ctx context.Context, updates []domain.StockUpdate) error
}

type OrderWriter interface {
	CreateOrder(ctx context.Context, customer domain.Customer, items []domain.OrderItem) (domain.Order, error)
}

type EventAppender interface {
	AppendEvent(ctx context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error
}

type PlacementTx interface {
	StockUpdater
	OrderWriter
	EventAppender
}

type TxRunner interface {
	// WithinTx commits when fn returns nil and rolls everything back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx PlacementTx) error) error
}

type OrderReader interface {
	// GetOrder returns domain.ErrNotFound when the order does not exist.
	GetOrder(ctx context.Context, id string) (domain.Order, error)
}

type OrderStore interface {
	OrderReader
	TxRunner
}

// PlacementRecorder receives the outcome of every CreateOrder call. result is
// "placed" or the domain.Kind of the failure.
type PlacementRecorder interface {
	ObservePlacement(result string, d time.Duration)
}
