package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Repository-level conditions. Adapters return these; the application layer
// turns them into a placement Error.
var (
	ErrNotFound      = errors.New("not found")
	ErrStockConflict = errors.New("stock changed since it was read")
)

type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindCustomerNotFound  Kind = "customer_not_found"
	KindNoProductsExist   Kind = "no_products_exist"
	KindProductNotFound   Kind = "product_not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindStockUpdateFailed Kind = "stock_update_failed"
	KindOrderWriteFailed  Kind = "order_write_failed"
	KindOrderNotFound     Kind = "order_not_found"
)

// Error is the single error type returned by order placement. Kind says what
// went wrong, ProductIDs names the products involved when there are any.
type Error struct {
	Kind       Kind
	Message    string
	ProductIDs []string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ReplaceAll(string(e.Kind), "_", " ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind only, so errors.Is(err, ErrInsufficientStock) holds for
// any insufficient stock error regardless of product.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrCustomerNotFound  = &Error{Kind: KindCustomerNotFound}
	ErrNoProductsExist   = &Error{Kind: KindNoProductsExist}
	ErrProductNotFound   = &Error{Kind: KindProductNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrStockUpdateFailed = &Error{Kind: KindStockUpdateFailed}
	ErrOrderWriteFailed  = &Error{Kind: KindOrderWriteFailed}
	ErrOrderNotFound     = &Error{Kind: KindOrderNotFound}
)

func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func CustomerNotFound(customerID string) *Error {
	return &Error{Kind: KindCustomerNotFound, Message: fmt.Sprintf("customer %q not found", customerID)}
}

func NoProductsExist() *Error {
	return &Error{Kind: KindNoProductsExist, Message: "none of the requested products exist"}
}

func ProductNotFound(ids []string) *Error {
	return &Error{
		Kind:       KindProductNotFound,
		Message:    "could not find products with ids " + strings.Join(ids, ", "),
		ProductIDs: ids,
	}
}

func InsufficientStock(productID string, available, requested int) *Error {
	return &Error{
		Kind:       KindInsufficientStock,
		Message:    fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", productID, available, requested),
		ProductIDs: []string{productID},
	}
}

func StockUpdateFailed(err error) *Error {
	return &Error{Kind: KindStockUpdateFailed, Message: "stock update failed", Err: err}
}

func OrderWriteFailed(err error) *Error {
	return &Error{Kind: KindOrderWriteFailed, Message: "order write failed", Err: err}
}

func OrderNotFound(orderID string) *Error {
	return &Error{Kind: KindOrderNotFound, Message: fmt.Sprintf("order %q not found", orderID)}
}

// KindOf returns the placement kind carried by err, or "" when err is not a
// placement error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
