package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcore/internal/domain/shipment"
)

const (
	insertShipmentSQL = `INSERT INTO shipments (id, order_id, status, carrier_id, tracking_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`

	getShipmentByOrderSQL = `SELECT id, order_id, status, carrier_id, COALESCE(tracking_number, ''),
		shipped_at, delivered_at, created_at, updated_at
		FROM shipments WHERE order_id = $1`

	updateShipmentStatusSQL = `UPDATE shipments
		SET status = $2,
		    tracking_number = NULLIF($3, ''),
		    shipped_at = CASE WHEN $2 = 'shipped' THEN $4 ELSE shipped_at END,
		    delivered_at = CASE WHEN $2 = 'delivered' THEN $4 ELSE delivered_at END,
		    updated_at = now()
		WHERE order_id = $1`
)

var _ shipment.Repository = (*ShipmentRepository)(nil)

// ShipmentRepository implements shipment.Repository backed by PostgreSQL.
// The unique constraint on order_id enforces the 1:1 relation.
type ShipmentRepository struct {
	pool *pgxpool.Pool
}

// NewShipmentRepository returns a ShipmentRepository that uses the given pool.
func NewShipmentRepository(pool *pgxpool.Pool) *ShipmentRepository {
	return &ShipmentRepository{pool: pool}
}

// Create inserts the shipment. A second shipment for the same order
// surfaces shipment.ErrAlreadyExists.
func (r *ShipmentRepository) Create(ctx context.Context, s *shipment.Shipment) error {
	_, err := r.pool.Exec(ctx, insertShipmentSQL,
		s.ID, s.OrderID, string(s.Status), s.CarrierID, s.TrackingNumber,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shipment.ErrAlreadyExists
		}
		return fmt.Errorf("creating shipment for order %q: %w", s.OrderID, mapError(err))
	}
	return nil
}

// GetByOrderID returns the shipment attached to the order.
func (r *ShipmentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*shipment.Shipment, error) {
	rows, err := r.pool.Query(ctx, getShipmentByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting shipment for order %q: %w", orderID, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanShipment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipment.ErrNotFound
		}
		return nil, fmt.Errorf("getting shipment for order %q: %w", orderID, err)
	}
	return &s, nil
}

// UpdateStatus applies a carrier event and returns the updated shipment.
// The shipped/delivered timestamps are stamped on the matching transitions.
func (r *ShipmentRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status shipment.Status, trackingNumber string, at time.Time) (*shipment.Shipment, error) {
	ct, err := r.pool.Exec(ctx, updateShipmentStatusSQL, orderID, string(status), trackingNumber, at)
	if err != nil {
		return nil, fmt.Errorf("updating shipment for order %q: %w", orderID, mapError(err))
	}
	if ct.RowsAffected() == 0 {
		return nil, shipment.ErrNotFound
	}
	return r.GetByOrderID(ctx, orderID)
}

func scanShipment(row pgx.CollectableRow) (shipment.Shipment, error) {
	var s shipment.Shipment
	err := row.Scan(
		&s.ID, &s.OrderID, (*string)(&s.Status), &s.CarrierID, &s.TrackingNumber,
		&s.ShippedAt, &s.DeliveredAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}
