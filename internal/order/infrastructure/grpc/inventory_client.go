package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dmehra2102/order-placement/internal/inventory/infrastructure/grpc/catalogv1"
	"github.com/dmehra2102/order-placement/internal/order/domain"
)

const callTimeout = 3 * time.Second

// InventoryClient resolves products through the inventory service's catalog.
// It satisfies application.ProductFinder.
type InventoryClient struct {
	log  *slog.Logger
	conn *grpc.ClientConn
	cc   catalogv1.CatalogClient
}

func NewInventoryClient(log *slog.Logger, addr string, opts ...grpc.DialOption) (*InventoryClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial inventory %s: %w", addr, err)
	}
	return &InventoryClient{
		log:  log,
		conn: conn,
		cc:   catalogv1.NewCatalogClient(conn),
	}, nil
}

func (c *InventoryClient) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.cc.FindProducts(ctx, &catalogv1.FindProductsRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("inventory find products: %w", err)
	}

	products := make([]domain.Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		products = append(products, domain.Product{
			ID:         p.ID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Quantity:   int(p.Quantity),
		})
	}
	return products, nil
}

func (c *InventoryClient) Close() error {
	return c.conn.Close()
}
