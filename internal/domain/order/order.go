// Package order implements the order engine: checkout, pricing, the atomic
// stock/coupon/order unit, and the status lifecycle.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a referenced order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrTxConflict is returned by the repository when the checkout or
// cancellation transaction aborts due to a concurrent conflict. The service
// retries these a bounded number of times.
var ErrTxConflict = errors.New("transaction conflict")

// Order is a placed customer order. Subtotal is the undiscounted sum of
// line item totals; Total = Subtotal - DiscountAmount + Tax + ShippingFee.
// Orders are immutable once delivered or cancelled.
type Order struct {
	ID                uuid.UUID
	OrderNumber       string
	UserID            int64
	Status            Status
	Items             []Item
	Subtotal          decimal.Decimal
	DiscountAmount    decimal.Decimal
	Tax               decimal.Decimal
	ShippingFee       decimal.Decimal
	Total             decimal.Decimal
	CouponCode        string
	ShippingAddressID int64
	BillingAddressID  int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Item is a single order line. UnitPrice is captured from the live product
// price at checkout and never changes afterwards.
type Item struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// Repository persists orders. Create and UpdateStatus are single atomic
// units: partial stock decrements, partial coupon redemption, or a status
// change without its compensating restock must never be observable.
type Repository interface {
	// Create persists the order and its items, decrements each product's
	// stock, and, when redeemCouponID is non-nil, marks the user's
	// redemption used and increments the coupon's bounded uses count.
	// Returns catalog.InsufficientStockError, coupon.ErrCouponAlreadyUsed,
	// coupon.ErrCouponExhausted, or ErrTxConflict on the respective aborts.
	Create(ctx context.Context, o *Order, redeemCouponID *int64) error

	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// UpdateStatus moves the order from its current status to next after
	// re-checking the transition table under lock. A transition to
	// cancelled restores each line item's stock in the same transaction.
	// Returns *InvalidTransitionError, ErrNotFound, or ErrTxConflict.
	UpdateStatus(ctx context.Context, id uuid.UUID, next Status) (*Order, error)
}
