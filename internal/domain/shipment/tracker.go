package shipment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/shopcore/internal/domain/order"
)

// OrderSource exposes the order lookup the tracker needs to validate
// shipment activity against the order lifecycle.
type OrderSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

// Tracker is a thin recorder for carrier assignment and delivery events.
// Like the payment tracker, it only attaches state to existing orders and
// never participates in the checkout transaction.
type Tracker struct {
	shipments Repository
	orders    OrderSource
	now       func() time.Time
}

// NewTracker creates a shipment Tracker.
func NewTracker(shipments Repository, orders OrderSource) *Tracker {
	return &Tracker{shipments: shipments, orders: orders, now: time.Now}
}

// Create assigns a carrier to an order and opens its shipment in pending.
// The order must exist and have reached confirmed; cancelled and still
// pending orders are rejected with ErrOrderNotReady.
func (t *Tracker) Create(ctx context.Context, orderID uuid.UUID, carrierID int64) (*Shipment, error) {
	o, err := t.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrOrderNotReady
		}
		return nil, errors.Wrap(err, "get order")
	}
	switch o.Status {
	case order.StatusConfirmed, order.StatusShipped, order.StatusDelivered:
	default:
		return nil, ErrOrderNotReady
	}

	now := t.now()
	s := &Shipment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    StatusPending,
		CarrierID: carrierID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.shipments.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyCarrierEvent consumes an asynchronous carrier callback. The target
// status must be a legal carrier-driven state change from the shipment's
// current status. A tracking number, when provided, replaces the stored one.
func (t *Tracker) ApplyCarrierEvent(ctx context.Context, orderID uuid.UUID, event Status, trackingNumber string) (*Shipment, error) {
	if !event.Valid() || event == StatusPending {
		return nil, ErrInvalidEvent
	}

	s, err := t.shipments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range carrierTransitions[s.Status] {
		if next == event {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidEvent
	}

	if trackingNumber == "" {
		trackingNumber = s.TrackingNumber
	}
	return t.shipments.UpdateStatus(ctx, orderID, event, trackingNumber, t.now())
}

// Get returns the shipment attached to the order.
func (t *Tracker) Get(ctx context.Context, orderID uuid.UUID) (*Shipment, error) {
	return t.shipments.GetByOrderID(ctx, orderID)
}
