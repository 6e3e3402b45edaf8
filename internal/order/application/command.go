package application

import (
	"strings"

	"github.com/dmehra2102/order-placement/internal/order/domain"
)

type CreateOrderCommand struct {
	CustomerID string
	Lines      []domain.RequestedLine
}

// Validate requires a customer id, at least one line, positive quantities and
// unique product ids.
func (c CreateOrderCommand) Validate() error {
	if strings.TrimSpace(c.CustomerID) == "" {
		return domain.InvalidRequest("customer_id is required")
	}
	if len(c.Lines) == 0 {
		return domain.InvalidRequest("at least one product is required")
	}

	seen := make(map[string]struct{}, len(c.Lines))
	var duplicates []string
	for i, line := range c.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return domain.InvalidRequest("product %d: id is required", i)
		}
		if line.Quantity <= 0 {
			e := domain.InvalidRequest("product %s: quantity must be positive, got %d", line.ProductID, line.Quantity)
			e.ProductIDs = []string{line.ProductID}
			return e
		}
		if _, ok := seen[line.ProductID]; ok {
			duplicates = append(duplicates, line.ProductID)
			continue
		}
		seen[line.ProductID] = struct{}{}
	}
	if len(duplicates) > 0 {
		e := domain.InvalidRequest("duplicate product ids: %s", strings.Join(duplicates, ", "))
		e.ProductIDs = duplicates
		return e
	}
	return nil
}

func (c CreateOrderCommand) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
