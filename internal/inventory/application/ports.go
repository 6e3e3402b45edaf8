package application

import (
	"context"

	"github.com/dmehra2102/order-placement/internal/inventory/domain"
)

type Catalog interface {
	// FindProducts returns the products that exist among ids.
	FindProducts(ctx context.Context, ids []string) ([]domain.Product, error)
}

type AlertRecorder interface {
	ObserveLowStock(productID string)
}
