package domain

import "errors"

var ErrNoProductIDs = errors.New("at least one product id is required")

type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Quantity   int
}

// LowStockAlert reports a product whose quantity fell to or under Threshold.
type LowStockAlert struct {
	OrderID   string
	ProductID string
	Quantity  int
	Threshold int
}

// OrderPlaced is the part of the order service's OrderCreated event the
// inventory reads.
type OrderPlaced struct {
	OrderID string        `json:"order_id"`
	Items   []OrderedItem `json:"items"`
}

type OrderedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (o OrderPlaced) ProductIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
