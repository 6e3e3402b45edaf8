//go:build integration

package postgres

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-placement/internal/order/application"
	"github.com/dmehra2102/order-placement/internal/order/domain"
	"github.com/dmehra2102/order-placement/pkg/logging"
	"github.com/dmehra2102/order-placement/pkg/outbox"
	"github.com/dmehra2102/order-placement/test/integration"
)

func setup(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pool, err := NewPool(ctx, integration.Postgres(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))

	repo := NewRepository(logging.Discard(), pool)
	require.NoError(t, repo.SaveCustomer(ctx, domain.Customer{ID: "C1", Name: "Ada"}))
	require.NoError(t, repo.SaveProduct(ctx, domain.Product{ID: "P1", Name: "Keyboard", PriceCents: 1000, Quantity: 5}))
	require.NoError(t, repo.SaveProduct(ctx, domain.Product{ID: "P2", Name: "Mouse", PriceCents: 450, Quantity: 1}))
	return repo, pool
}

func TestPlaceOrderThroughService(t *testing.T) {
	repo, pool := setup(t)
	ctx := context.Background()
	svc := application.NewService(logging.Discard(), repo, repo, repo, nil)

	order, err := svc.CreateOrder(ctx, application.CreateOrderCommand{
		CustomerID: "C1",
		Lines:      []domain.RequestedLine{{ProductID: "P1", Quantity: 3}, {ProductID: "P2", Quantity: 1}},
	})
	require.NoError(t, err)

	products, err := repo.FindProductsByIDs(ctx, []string{"P1", "P2", "PX"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 2, products[0].Quantity)
	assert.Equal(t, 0, products[1].Quantity)

	stored, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Items, stored.Items)
	assert.Equal(t, int64(3450), stored.TotalCents)

	events, err := NewOutboxStore(logging.Discard(), pool).LockBatch(ctx, "r1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, order.ID, events[0].AggregateID)
	assert.Equal(t, "order-service", events[0].Headers["source"])
}

func TestGuardedUpdateRollsBack(t *testing.T) {
	_, pool := setup(t)
	ctx := context.Background()
	var logs bytes.Buffer
	repo := NewRepository(logging.NewWithWriter(&logs, "info"), pool)

	err := repo.WithinTx(ctx, func(ctx context.Context, tx application.PlacementTx) error {
		return tx.UpdateProductQuantities(ctx, []domain.StockUpdate{
			{ProductID: "P1", Quantity: 2, Expected: 5},
			{ProductID: "P2", Quantity: 0, Expected: 7},
		})
	})
	require.ErrorIs(t, err, domain.ErrStockConflict)
	assert.Contains(t, logs.String(), `"msg":"stock conflict"`)
	assert.Contains(t, logs.String(), `"product_id":"P2"`)

	products, err := repo.FindProductsByIDs(ctx, []string{"P1"})
	require.NoError(t, err)
	assert.Equal(t, 5, products[0].Quantity)
}

func TestLookupsReportNotFound(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	_, err := repo.FindCustomerByID(ctx, "C404")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOutboxRetryAndLease(t *testing.T) {
	repo, pool := setup(t)
	ctx := context.Background()
	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx application.PlacementTx) error {
		return tx.AppendEvent(ctx, "o1", domain.EventOrderCreated, []byte(`{"order_id":"o1"}`), nil, "")
	}))
	store := NewOutboxStore(logging.Discard(), pool)

	batch, err := store.LockBatch(ctx, "r1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	none, err := store.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.MarkFailed(ctx, batch[0].ID, "broker down"))
	retry, err := store.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, 1, retry[0].RetryCount)

	require.NoError(t, store.MarkSent(ctx, []int64{retry[0].ID}))
	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM outbox WHERE id=$1`, retry[0].ID).Scan(&status))
	assert.Equal(t, string(outbox.StatusSent), status)
}
