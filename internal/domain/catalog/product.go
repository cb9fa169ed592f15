// Package catalog holds the product catalog: products, their live prices,
// and on-hand stock levels.
package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a referenced product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a purchasable catalog entry. Price is the live price captured
// into order line items at checkout; Cost is internal and never exposed
// through the API. StockQuantity can never go negative.
type Product struct {
	ID            int64
	SKU           string
	Name          string
	Price         decimal.Decimal
	Cost          decimal.Decimal
	StockQuantity int
	CategoryID    int64
	Active        bool
}

// InsufficientStockError indicates a requested quantity exceeds the
// product's available stock.
type InsufficientStockError struct {
	ProductID int64
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (requested %d)", e.ProductID, e.Requested)
}

// InactiveProductError indicates an order references a product that is not
// currently purchasable.
type InactiveProductError struct {
	ProductID int64
}

func (e *InactiveProductError) Error() string {
	return fmt.Sprintf("product %d is not active", e.ProductID)
}

// Repository provides catalog access. Stock decrements for checkout happen
// inside the order repository's transaction; AdjustStock covers standalone
// restocking deltas.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	// AdjustStock applies delta to the product's stock, refusing changes
	// that would drive it negative.
	AdjustStock(ctx context.Context, id int64, delta int) error
}
