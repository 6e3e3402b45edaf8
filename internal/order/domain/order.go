package domain

import "time"

type OrderStatus string

const (
	StatusPlaced OrderStatus = "placed"
)

type Customer struct {
	ID    string
	Name  string
	Email string
}

type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Quantity   int
}

// RequestedLine is one (product, quantity) pair of an incoming order request.
type RequestedLine struct {
	ProductID string
	Quantity  int
}

// OrderItem captures the unit price at placement time; later price changes on
// the product never reach it.
type OrderItem struct {
	ID         string
	ProductID  string
	Quantity   int
	PriceCents int64
}

func (i OrderItem) SubtotalCents() int64 {
	return int64(i.Quantity) * i.PriceCents
}

// StockUpdate sets a product's quantity to Quantity, provided the stored
// quantity still equals Expected.
type StockUpdate struct {
	ProductID string
	Quantity  int
	Expected  int
}

type Order struct {
	ID         string
	CustomerID string
	Items      []OrderItem
	TotalCents int64
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewOrder(id, customerID string, items []OrderItem) Order {
	var total int64
	for _, item := range items {
		total += item.SubtotalCents()
	}
	now := time.Now().UTC()
	return Order{
		ID:         id,
		CustomerID: customerID,
		Items:      items,
		TotalCents: total,
		Status:     StatusPlaced,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
