package domain

import "time"

const EventOrderCreated = "OrderCreated"

type OrderCreated struct {
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	TotalCents int64         `json:"total_cents"`
	Items      []OrderedItem `json:"items"`
	PlacedAt   time.Time     `json:"placed_at"`
}

type OrderedItem struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

func NewOrderCreated(o Order) OrderCreated {
	items := make([]OrderedItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderedItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	return OrderCreated{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		TotalCents: o.TotalCents,
		Items:      items,
		PlacedAt:   o.CreatedAt,
	}
}
