package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/order-placement/internal/inventory/domain"
)

type Service struct {
	log       *slog.Logger
	catalog   Catalog
	recorder  AlertRecorder
	threshold int
}

func NewService(log *slog.Logger, catalog Catalog, recorder AlertRecorder, threshold int) *Service {
	return &Service{log: log, catalog: catalog, recorder: recorder, threshold: threshold}
}

func (s *Service) FindProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, domain.ErrNoProductIDs
	}
	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	return products, nil
}

// CheckLowStock re-reads the products of a placed order and returns an alert
// for each one at or under the threshold.
func (s *Service) CheckLowStock(ctx context.Context, ev domain.OrderPlaced) ([]domain.LowStockAlert, error) {
	if len(ev.Items) == 0 {
		return nil, nil
	}
	products, err := s.catalog.FindProducts(ctx, ev.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("check low stock for order %s: %w", ev.OrderID, err)
	}

	var alerts []domain.LowStockAlert
	for _, p := range products {
		if p.Quantity > s.threshold {
			continue
		}
		alert := domain.LowStockAlert{OrderID: ev.OrderID, ProductID: p.ID, Quantity: p.Quantity, Threshold: s.threshold}
		alerts = append(alerts, alert)
		if s.recorder != nil {
			s.recorder.ObserveLowStock(p.ID)
		}
		s.log.WarnContext(ctx, "low stock", "product_id", p.ID, "quantity", p.Quantity, "threshold", s.threshold, "order_id", ev.OrderID)
	}
	return alerts, nil
}
