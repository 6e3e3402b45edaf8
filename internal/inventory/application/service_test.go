package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-placement/internal/inventory/domain"
	"github.com/dmehra2102/order-placement/pkg/logging"
)

type catalogMock struct {
	mock.Mock
}

func (m *catalogMock) FindProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	products, _ := args.Get(0).([]domain.Product)
	return products, args.Error(1)
}

type recorderMock struct {
	mock.Mock
}

func (m *recorderMock) ObserveLowStock(productID string) { m.Called(productID) }

func TestCheckLowStock(t *testing.T) {
	catalog := &catalogMock{}
	catalog.On("FindProducts", mock.Anything, []string{"P1", "P2", "P3"}).Return([]domain.Product{
		{ID: "P1", Quantity: 2},
		{ID: "P2", Quantity: 5},
		{ID: "P3", Quantity: 6},
	}, nil).Once()
	rec := &recorderMock{}
	rec.On("ObserveLowStock", "P1").Once()
	rec.On("ObserveLowStock", "P2").Once()

	svc := NewService(logging.Discard(), catalog, rec, 5)
	alerts, err := svc.CheckLowStock(context.Background(), domain.OrderPlaced{
		OrderID: "o1",
		Items:   []domain.OrderedItem{{ProductID: "P1", Quantity: 3}, {ProductID: "P2", Quantity: 1}, {ProductID: "P3", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.LowStockAlert{
		{OrderID: "o1", ProductID: "P1", Quantity: 2, Threshold: 5},
		{OrderID: "o1", ProductID: "P2", Quantity: 5, Threshold: 5},
	}, alerts)
	catalog.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestCheckLowStockEmptyOrder(t *testing.T) {
	catalog := &catalogMock{}
	svc := NewService(logging.Discard(), catalog, nil, 5)

	alerts, err := svc.CheckLowStock(context.Background(), domain.OrderPlaced{OrderID: "o1"})
	require.NoError(t, err)
	assert.Empty(t, alerts)
	catalog.AssertNotCalled(t, "FindProducts", mock.Anything, mock.Anything)
}

func TestFindProducts(t *testing.T) {
	catalog := &catalogMock{}
	catalog.On("FindProducts", mock.Anything, []string{"P1"}).Return(nil, errors.New("db down")).Once()
	svc := NewService(logging.Discard(), catalog, nil, 5)

	_, err := svc.FindProducts(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoProductIDs)

	_, err = svc.FindProducts(context.Background(), []string{"P1"})
	assert.EqualError(t, err, "find products: db down")
}
