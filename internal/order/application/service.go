package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-placement/internal/order/domain"
	"github.com/dmehra2102/order-placement/pkg/tracing"
)

const resultPlaced = "placed"

type Service struct {
	log       *slog.Logger
	customers CustomerFinder
	products  ProductFinder
	orders    OrderStore
	recorder  PlacementRecorder
	tracer    trace.Tracer
}

func NewService(log *slog.Logger, customers CustomerFinder, products ProductFinder, orders OrderStore, recorder PlacementRecorder) *Service {
	return &Service{
		log:       log,
		customers: customers,
		products:  products,
		orders:    orders,
		recorder:  recorder,
		tracer:    otel.Tracer("order-application"),
	}
}

// CreateOrder validates the command against the current customer and product
// records, then decrements stock and stores the order in one transaction.
// Every failure is a *domain.Error and leaves stock and orders untouched.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", cmd.CustomerID),
		attribute.Int("order.lines", len(cmd.Lines)),
	))
	defer span.End()

	start := time.Now()
	order, err := s.createOrder(ctx, cmd)

	result := resultPlaced
	if err != nil {
		result = string(domain.KindOf(err))
		if result == "" {
			result = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		s.log.WarnContext(ctx, "order rejected", "customer_id", cmd.CustomerID, "result", result, "err", err)
	} else {
		span.SetAttributes(attribute.String("order.id", order.ID))
		s.log.InfoContext(ctx, "order placed", "order_id", order.ID, "customer_id", order.CustomerID, "total_cents", order.TotalCents)
	}
	if s.recorder != nil {
		s.recorder.ObservePlacement(result, time.Since(start))
	}
	return order, err
}

func (s *Service) createOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return domain.Order{}, err
	}

	customer, err := s.customers.FindCustomerByID(ctx, cmd.CustomerID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, domain.CustomerNotFound(cmd.CustomerID)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("find customer %s: %w", cmd.CustomerID, err)
	}

	found, err := s.products.FindProductsByIDs(ctx, cmd.ProductIDs())
	if err != nil {
		return domain.Order{}, fmt.Errorf("find products: %w", err)
	}
	if len(found) == 0 {
		return domain.Order{}, domain.NoProductsExist()
	}

	byID := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	var missing []string
	for _, line := range cmd.Lines {
		if _, ok := byID[line.ProductID]; !ok {
			missing = append(missing, line.ProductID)
		}
	}
	if len(missing) > 0 {
		return domain.Order{}, domain.ProductNotFound(missing)
	}

	items := make([]domain.OrderItem, 0, len(cmd.Lines))
	updates := make([]domain.StockUpdate, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		p := byID[line.ProductID]
		if line.Quantity > p.Quantity {
			return domain.Order{}, domain.InsufficientStock(p.ID, p.Quantity, line.Quantity)
		}
		items = append(items, domain.OrderItem{
			ProductID:  p.ID,
			Quantity:   line.Quantity,
			PriceCents: p.PriceCents,
		})
		updates = append(updates, domain.StockUpdate{
			ProductID: p.ID,
			Quantity:  p.Quantity - line.Quantity,
			Expected:  p.Quantity,
		})
	}

	return s.place(ctx, customer, items, updates)
}

func (s *Service) place(ctx context.Context, customer domain.Customer, items []domain.OrderItem, updates []domain.StockUpdate) (domain.Order, error) {
	var (
		order        domain.Order
		stockWritten bool
	)
	err := s.orders.WithinTx(ctx, func(ctx context.Context, tx PlacementTx) error {
		if err := tx.UpdateProductQuantities(ctx, updates); err != nil {
			return domain.StockUpdateFailed(err)
		}
		stockWritten = true

		created, err := tx.CreateOrder(ctx, customer, items)
		if err != nil {
			return domain.OrderWriteFailed(err)
		}

		payload, err := json.Marshal(domain.NewOrderCreated(created))
		if err != nil {
			return domain.OrderWriteFailed(err)
		}
		headers := map[string]string{"source": "order-service", "customer_id": customer.ID}
		if err := tx.AppendEvent(ctx, created.ID, domain.EventOrderCreated, payload, headers, tracing.Traceparent(ctx)); err != nil {
			return domain.OrderWriteFailed(fmt.Errorf("append %s event: %w", domain.EventOrderCreated, err))
		}

		order = created
		return nil
	})
	if err == nil {
		return order, nil
	}

	var perr *domain.Error
	if errors.As(err, &perr) {
		return domain.Order{}, err
	}
	// Begin or commit failed; nothing was kept.
	if stockWritten {
		return domain.Order{}, domain.OrderWriteFailed(err)
	}
	return domain.Order{}, domain.StockUpdateFailed(err)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "GetOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := s.orders.GetOrder(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	if err != nil {
		span.RecordError(err)
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}
