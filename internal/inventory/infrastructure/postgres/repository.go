package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-placement/internal/inventory/domain"
)

// Repository reads the products table owned by the order service schema.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) FindProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price_cents, quantity FROM products WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Product])
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	r.log.DebugContext(ctx, "catalog lookup", "requested", len(ids), "found", len(products))
	return products, nil
}
