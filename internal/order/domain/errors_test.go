package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("handler: %w", InsufficientStock("P1", 5, 10))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.Equal(t, "insufficient stock for product P1: available 5, requested 10", InsufficientStock("P1", 5, 10).Error())
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := StockUpdateFailed(fmt.Errorf("product P1: %w", ErrStockConflict))

	assert.ErrorIs(t, err, ErrStockUpdateFailed)
	assert.ErrorIs(t, err, ErrStockConflict)
	assert.Equal(t, "stock update failed: product P1: stock changed since it was read", err.Error())
}

func TestProductNotFoundListsIDs(t *testing.T) {
	err := ProductNotFound([]string{"PX", "PY"})

	assert.Equal(t, []string{"PX", "PY"}, err.ProductIDs)
	assert.Equal(t, "could not find products with ids PX, PY", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, "order write failed", (&Error{Kind: KindOrderWriteFailed}).Error())
}
