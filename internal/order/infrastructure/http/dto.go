package http

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-placement/internal/order/application"
	"github.com/dmehra2102/order-placement/internal/order/domain"
	"github.com/dmehra2102/order-placement/pkg/idempotency"
)

type CreateOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	Products   []RequestedProduct `json:"products"`
}

type RequestedProduct struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

func (r CreateOrderRequest) command() application.CreateOrderCommand {
	lines := make([]domain.RequestedLine, 0, len(r.Products))
	for _, p := range r.Products {
		lines = append(lines, domain.RequestedLine{ProductID: p.ID, Quantity: p.Quantity})
	}
	return application.CreateOrderCommand{CustomerID: r.CustomerID, Lines: lines}
}

// fingerprint identifies the decoded request, so formatting differences in
// the raw body do not count as a different request.
func (r CreateOrderRequest) fingerprint() string {
	b, _ := json.Marshal(r)
	return idempotency.Fingerprint(b)
}

type OrderResponse struct {
	ID         string              `json:"id"`
	CustomerID string              `json:"customer_id"`
	Status     string              `json:"status"`
	Total      string              `json:"total"`
	TotalCents int64               `json:"total_cents"`
	Items      []OrderItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"created_at"`
}

type OrderItemResponse struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Price      string `json:"price"`
	PriceCents int64  `json:"price_cents"`
}

type ErrorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

func newOrderResponse(o domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Price:      formatCents(item.PriceCents),
			PriceCents: item.PriceCents,
		})
	}
	return OrderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		Total:      formatCents(o.TotalCents),
		TotalCents: o.TotalCents,
		Items:      items,
		CreatedAt:  o.CreatedAt,
	}
}

// formatCents renders 1050 as "10.50".
func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
