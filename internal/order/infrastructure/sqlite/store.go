// Package sqlite stores customers, products, orders and the outbox in a single
// SQLite file through the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dmehra2102/order-placement/internal/order/application"
	"github.com/dmehra2102/order-placement/internal/order/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
	quantity    INTEGER NOT NULL CHECK (quantity >= 0)
);
CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL REFERENCES customers(id),
	total_cents INTEGER NOT NULL,
	status      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
	id          TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	product_id  TEXT NOT NULL REFERENCES products(id),
	quantity    INTEGER NOT NULL CHECK (quantity > 0),
	price_cents INTEGER NOT NULL,
	UNIQUE (order_id, product_id)
);
CREATE TABLE IF NOT EXISTS outbox (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        TEXT NOT NULL,
	headers        TEXT NOT NULL DEFAULT '{}',
	traceparent    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until_ms INTEGER,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_status_id ON outbox(status, id);
`

type Store struct {
	log *slog.Logger
	db  *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(log *slog.Logger, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// One writer at a time; transactions serialize on this connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{log: log, db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) FindCustomerByID(ctx context.Context, id string) (domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("sqlite: select customer: %w", err)
	}
	return c, nil
}

func (s *Store) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, name, price_cents, quantity FROM products WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Quantity); err != nil {
			return nil, fmt.Errorf("sqlite: scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var (
		o                domain.Order
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, customer_id, total_cents, status, created_at, updated_at FROM orders WHERE id = ?`, id).
		Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: select order: %w", err)
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return domain.Order{}, err
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Order{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, product_id, quantity, price_cents FROM order_items WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: select order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.PriceCents); err != nil {
			return domain.Order{}, fmt.Errorf("sqlite: scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (s *Store) SaveCustomer(ctx context.Context, c domain.Customer) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO customers (id, name, email) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`, c.ID, c.Name, c.Email)
	return err
}

func (s *Store) SaveProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO products (id, name, price_cents, quantity) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, price_cents = excluded.price_cents, quantity = excluded.quantity`,
		p.ID, p.Name, p.PriceCents, p.Quantity)
	return err
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.PlacementTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, &txStore{log: s.log, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

type txStore struct {
	log *slog.Logger
	tx  *sql.Tx
}

func (t *txStore) UpdateProductQuantities(ctx context.Context, updates []domain.StockUpdate) error {
	stmt, err := t.tx.PrepareContext(ctx, `UPDATE products SET quantity = ? WHERE id = ? AND quantity = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare stock update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.Quantity, u.ProductID, u.Expected)
		if err != nil {
			return fmt.Errorf("sqlite: update product %s: %w", u.ProductID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: update product %s: %w", u.ProductID, err)
		}
		if n == 0 {
			t.log.WarnContext(ctx, "stock conflict", "product_id", u.ProductID, "expected", u.Expected)
			return fmt.Errorf("product %s: %w", u.ProductID, domain.ErrStockConflict)
		}
	}
	return nil
}

func (t *txStore) CreateOrder(ctx context.Context, customer domain.Customer, items []domain.OrderItem) (domain.Order, error) {
	stored := make([]domain.OrderItem, len(items))
	for i, item := range items {
		item.ID = uuid.NewString()
		stored[i] = item
	}
	o := domain.NewOrder(uuid.NewString(), customer.ID, stored)

	_, err := t.tx.ExecContext(ctx, `INSERT INTO orders (id, customer_id, total_cents, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerID, o.TotalCents, string(o.Status), formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: insert order: %w", err)
	}
	for i, item := range o.Items {
		_, err := t.tx.ExecContext(ctx, `INSERT INTO order_items (id, order_id, position, product_id, quantity, price_cents) VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, o.ID, i, item.ProductID, item.Quantity, item.PriceCents)
		if err != nil {
			return domain.Order{}, fmt.Errorf("sqlite: insert order item %s: %w", item.ProductID, err)
		}
	}
	return o, nil
}

func (t *txStore) AppendEvent(ctx context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	if headers == nil {
		headers = map[string]string{}
	}
	rawHeaders, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("sqlite: encode headers: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`,
		"order", aggregateID, eventType, string(payload), string(rawHeaders), traceparent, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("sqlite: insert outbox: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
