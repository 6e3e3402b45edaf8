package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-placement/internal/order/application"
	"github.com/dmehra2102/order-placement/internal/order/domain"
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) FindCustomerByID(ctx context.Context, id string) (domain.Customer, error) {
	var c domain.Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, email FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Customer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

func (r *Repository) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price_cents, quantity FROM products WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		var p domain.Product
		err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Quantity)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return products, nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, customer_id, total_cents, status, created_at, updated_at FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, quantity, price_cents FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var item domain.OrderItem
		err := row.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.PriceCents)
		return item, err
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order items: %w", err)
	}
	return o, nil
}

// SaveCustomer inserts or replaces a customer.
func (r *Repository) SaveCustomer(ctx context.Context, c domain.Customer) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO customers (id, name, email) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name=$2, email=$3`, c.ID, c.Name, c.Email)
	return err
}

// SaveProduct inserts or replaces a product.
func (r *Repository) SaveProduct(ctx context.Context, p domain.Product) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO products (id, name, price_cents, quantity) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET name=$2, price_cents=$3, quantity=$4`, p.ID, p.Name, p.PriceCents, p.Quantity)
	return err
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.PlacementTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txRepo{log: r.log, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txRepo struct {
	log *slog.Logger
	tx  pgx.Tx
}

func (t *txRepo) UpdateProductQuantities(ctx context.Context, updates []domain.StockUpdate) error {
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE products SET quantity=$2 WHERE id=$1 AND quantity=$3`, u.ProductID, u.Quantity, u.Expected)
	}

	br := t.tx.SendBatch(ctx, batch)
	for _, u := range updates {
		ct, err := br.Exec()
		if err != nil {
			_ = br.Close()
			if pgCode(err) == codeCheckViolation {
				t.log.WarnContext(ctx, "stock conflict", "product_id", u.ProductID, "expected", u.Expected, "reason", "check violation")
				return fmt.Errorf("product %s: %w", u.ProductID, domain.ErrStockConflict)
			}
			return fmt.Errorf("update product %s: %w", u.ProductID, err)
		}
		if ct.RowsAffected() == 0 {
			_ = br.Close()
			t.log.WarnContext(ctx, "stock conflict", "product_id", u.ProductID, "expected", u.Expected)
			return fmt.Errorf("product %s: %w", u.ProductID, domain.ErrStockConflict)
		}
	}
	return br.Close()
}

func (t *txRepo) CreateOrder(ctx context.Context, customer domain.Customer, items []domain.OrderItem) (domain.Order, error) {
	stored := make([]domain.OrderItem, len(items))
	for i, item := range items {
		item.ID = uuid.NewString()
		stored[i] = item
	}
	o := domain.NewOrder(uuid.NewString(), customer.ID, stored)

	_, err := t.tx.Exec(ctx, `INSERT INTO orders (id, customer_id, total_cents, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.CustomerID, o.TotalCents, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.Order{}, fmt.Errorf("order %s already exists: %w", o.ID, err)
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, position, product_id, quantity, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			item.ID, o.ID, i, item.ProductID, item.Quantity, item.PriceCents)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Order{}, fmt.Errorf("insert order items: %w", err)
	}
	return o, nil
}

func (t *txRepo) AppendEvent(ctx context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"order", aggregateID, eventType, payload, headers, traceparent)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
