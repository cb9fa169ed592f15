// Package shipment records carrier assignment and delivery progress, keyed
// 1:1 by order.
package shipment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Status is the delivery state of a shipment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusReturned  Status = "returned"
)

// carrierTransitions lists the states a carrier event may move a shipment
// into, per current state. Returns are possible any time after handover.
var carrierTransitions = map[Status][]Status{
	StatusPending:   {StatusShipped},
	StatusShipped:   {StatusInTransit, StatusDelivered, StatusReturned},
	StatusInTransit: {StatusDelivered, StatusReturned},
	StatusDelivered: {StatusReturned},
	StatusReturned:  {},
}

// Valid reports whether s is a known shipment status.
func (s Status) Valid() bool {
	_, ok := carrierTransitions[s]
	return ok
}

var (
	// ErrNotFound is returned when no shipment exists for the order.
	ErrNotFound = errors.New("shipment not found")
	// ErrAlreadyExists is returned when a shipment already exists for the
	// order (the 1:1 constraint).
	ErrAlreadyExists = errors.New("shipment already exists for order")
	// ErrOrderNotReady is returned when the referenced order is missing or
	// has not been confirmed yet.
	ErrOrderNotReady = errors.New("order not ready for shipment")
	// ErrInvalidEvent is returned for a carrier event that is not a legal
	// shipment state change.
	ErrInvalidEvent = errors.New("invalid shipment state change")
)

// Shipment is one shipment record tied to exactly one order.
type Shipment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Status         Status
	CarrierID      int64
	TrackingNumber string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository persists shipments. Create must enforce the unique order_id
// constraint and surface ErrAlreadyExists on violation.
type Repository interface {
	Create(ctx context.Context, s *Shipment) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Shipment, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status, trackingNumber string, at time.Time) (*Shipment, error)
}
