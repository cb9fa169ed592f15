package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcore/internal/domain/order"
)

// OrderSource exposes the order lookup the tracker needs to validate
// payment activity against the order lifecycle.
type OrderSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

// Tracker is a thin recorder for payment attempts and gateway results.
// It never participates in the checkout transaction: it only attaches state
// to orders that already exist.
type Tracker struct {
	payments Repository
	orders   OrderSource
	now      func() time.Time
}

// NewTracker creates a payment Tracker.
func NewTracker(payments Repository, orders OrderSource) *Tracker {
	return &Tracker{payments: payments, orders: orders, now: time.Now}
}

// Record creates the pending payment for an order. The order must exist and
// be awaiting or holding confirmation (pending or confirmed), and the amount
// must equal the order total at this moment.
func (t *Tracker) Record(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method string) (*Payment, error) {
	o, err := t.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrOrderNotReady
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status != order.StatusPending && o.Status != order.StatusConfirmed {
		return nil, ErrOrderNotReady
	}
	if !amount.Equal(o.Total) {
		return nil, ErrAmountMismatch
	}

	now := t.now()
	p := &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    StatusPending,
		Amount:    amount,
		Method:    method,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplyGatewayResult consumes an asynchronous gateway callback for the
// order's payment. The target status must be a legal gateway-driven state
// change from the payment's current status.
func (t *Tracker) ApplyGatewayResult(ctx context.Context, orderID uuid.UUID, result Status, transactionRef string) (*Payment, error) {
	if !result.Valid() || result == StatusPending {
		return nil, ErrInvalidResult
	}

	p, err := t.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range gatewayTransitions[p.Status] {
		if next == result {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidResult
	}

	return t.payments.UpdateStatus(ctx, orderID, result, transactionRef)
}

// Get returns the payment attached to the order.
func (t *Tracker) Get(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	return t.payments.GetByOrderID(ctx, orderID)
}
