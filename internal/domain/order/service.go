package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopcore/internal/domain/catalog"
	"github.com/xenking/shopcore/internal/domain/coupon"
)

// maxCheckoutAttempts bounds retries of the checkout transaction when it
// aborts on a concurrent conflict.
const maxCheckoutAttempts = 3

// Sentinel errors for order validation.
var (
	ErrEmptyItems = errors.New("items required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// ItemRequest is one requested cart line.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID            int64
	Items             []ItemRequest
	ShippingAddressID int64
	BillingAddressID  int64
	CouponCode        string
}

// Pricing holds the order-level pricing policy applied on top of line items.
type Pricing struct {
	// TaxRate is the fraction of the discounted subtotal charged as tax,
	// e.g. 0.08 for 8%.
	TaxRate decimal.Decimal
	// ShippingFee is the flat fee charged per order.
	ShippingFee decimal.Decimal
	// FreeShippingOver waives the fee when the discounted subtotal reaches
	// this amount. Zero disables the waiver.
	FreeShippingOver decimal.Decimal
}

// Service is the order engine. It validates checkout requests, prices them,
// delegates the atomic persistence unit to the repository, and drives the
// status lifecycle.
type Service struct {
	products catalog.Repository
	coupons  *coupon.Validator
	orders   Repository
	pricing  Pricing
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products catalog.Repository, coupons *coupon.Validator, orders Repository, pricing Pricing) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		pricing:  pricing,
		now:      time.Now,
	}
}

// PlaceOrder validates the cart, captures live prices into line items,
// applies at most one coupon, and persists the order atomically with the
// stock decrements and coupon redemption. The new order starts in pending.
//
// Stock and coupon checks run twice: once here for a fast synchronous
// failure, and again as conditional updates inside the repository
// transaction, which is the authoritative guard under concurrency.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[int64]catalog.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Validate availability and build line items with captured prices.
	items := make([]Item, len(req.Items))
	subtotal := decimal.Zero
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.Active {
			return nil, &catalog.InactiveProductError{ProductID: item.ProductID}
		}
		if p.StockQuantity < item.Quantity {
			return nil, &catalog.InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		items[i] = Item{
			ID:         uuid.New(),
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  p.Price,
			TotalPrice: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}
	subtotal = subtotal.Round(2)

	// At most one coupon. Eligibility is checked against the undiscounted
	// subtotal; redemption happens inside the checkout transaction.
	discountAmount := decimal.Zero
	var redeemCouponID *int64
	if req.CouponCode != "" {
		rule, discount, err := s.coupons.CheckEligibility(ctx, req.UserID, req.CouponCode, subtotal)
		if err != nil {
			return nil, err
		}
		discountAmount = discount.Amount
		redeemCouponID = &rule.ID
	}

	discounted := subtotal.Sub(discountAmount)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	tax := discounted.Mul(s.pricing.TaxRate).Round(2)
	shipping := s.pricing.ShippingFee
	if s.pricing.FreeShippingOver.IsPositive() && discounted.GreaterThanOrEqual(s.pricing.FreeShippingOver) {
		shipping = decimal.Zero
	}

	now := s.now()
	o := &Order{
		ID:                uuid.New(),
		UserID:            req.UserID,
		Status:            StatusPending,
		Items:             items,
		Subtotal:          subtotal,
		DiscountAmount:    discountAmount,
		Tax:               tax,
		ShippingFee:       shipping,
		Total:             discounted.Add(tax).Add(shipping).Round(2),
		CouponCode:        req.CouponCode,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	o.OrderNumber = newOrderNumber(o.ID, now)
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}

	if err := s.createWithRetry(ctx, o, redeemCouponID); err != nil {
		return nil, err
	}

	return o, nil
}

// createWithRetry runs the atomic checkout unit, retrying bounded times on
// transaction conflicts. Deterministic domain failures (lost stock race,
// redeemed coupon) surface immediately.
func (s *Service) createWithRetry(ctx context.Context, o *Order, redeemCouponID *int64) error {
	var err error
	for attempt := 1; attempt <= maxCheckoutAttempts; attempt++ {
		err = s.orders.Create(ctx, o, redeemCouponID)
		if err == nil || !errors.Is(err, ErrTxConflict) {
			return err
		}
		zctx.From(ctx).Warn("checkout transaction conflict, retrying",
			zap.String("order_id", o.ID.String()),
			zap.Int("attempt", attempt),
		)
	}
	return errors.Wrap(err, "checkout retries exhausted")
}

// AdvanceStatus moves an order along the lifecycle. Transitions are
// validated against the closed transition table; a move to cancelled
// restores the reserved stock as a compensating action in the same
// transaction. Coupon redemption is never reversed: a cancelled order
// leaves its coupon spent.
func (s *Service) AdvanceStatus(ctx context.Context, id uuid.UUID, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, &InvalidTransitionError{To: next}
	}
	o, err := s.orders.UpdateStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel is shorthand for advancing the order to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.AdvanceStatus(ctx, id, StatusCancelled)
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// newOrderNumber builds the human-readable unique order number, e.g.
// SC-20260823-9F2C41. Uniqueness comes from the order's UUID prefix; the
// database unique constraint on order_number is the backstop.
func newOrderNumber(id uuid.UUID, t time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
	return fmt.Sprintf("SC-%s-%s", t.UTC().Format("20060102"), short)
}
