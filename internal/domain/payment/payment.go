// Package payment records payment attempts and gateway results, keyed 1:1
// by order.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// gatewayTransitions lists the states a gateway callback may move a payment
// into, per current state. Failed payments may be retried by the gateway
// (failed -> completed); refunds only apply to completed payments.
var gatewayTransitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusFailed:    {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
	StatusRefunded:  {},
}

// Valid reports whether s is a known payment status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when no payment exists for the order.
	ErrNotFound = errors.New("payment not found")
	// ErrAlreadyRecorded is returned when a payment already exists for the
	// order (the 1:1 constraint).
	ErrAlreadyRecorded = errors.New("payment already recorded for order")
	// ErrOrderNotReady is returned when the referenced order is missing or
	// not in a status that accepts payment activity.
	ErrOrderNotReady = errors.New("order not ready for payment")
	// ErrAmountMismatch is returned when the recorded amount differs from
	// the order total.
	ErrAmountMismatch = errors.New("payment amount does not match order total")
	// ErrInvalidResult is returned for a gateway callback that is not a
	// legal payment state change.
	ErrInvalidResult = errors.New("invalid payment state change")
)

// Payment is one payment record tied to exactly one order.
type Payment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Status         Status
	Amount         decimal.Decimal
	Method         string
	TransactionRef string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository persists payments. Create must enforce the unique order_id
// constraint and surface ErrAlreadyRecorded on violation.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status, transactionRef string) (*Payment, error)
}
