package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcore/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, order_id, status, amount, method, transaction_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`

	getPaymentByOrderSQL = `SELECT id, order_id, status, amount, method, COALESCE(transaction_ref, ''), created_at, updated_at
		FROM payments WHERE order_id = $1`

	updatePaymentStatusSQL = `UPDATE payments
		SET status = $2, transaction_ref = NULLIF($3, ''), updated_at = now()
		WHERE order_id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
// The unique constraint on order_id enforces the 1:1 relation.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts the payment. A second payment for the same order surfaces
// payment.ErrAlreadyRecorded.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.pool.Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, string(p.Status), p.Amount, p.Method, p.TransactionRef,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.ErrAlreadyRecorded
		}
		return fmt.Errorf("creating payment for order %q: %w", p.OrderID, mapError(err))
	}
	return nil
}

// GetByOrderID returns the payment attached to the order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, getPaymentByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}
	return &p, nil
}

// UpdateStatus applies a gateway result and returns the updated payment.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status payment.Status, transactionRef string) (*payment.Payment, error) {
	ct, err := r.pool.Exec(ctx, updatePaymentStatusSQL, orderID, string(status), transactionRef)
	if err != nil {
		return nil, fmt.Errorf("updating payment for order %q: %w", orderID, mapError(err))
	}
	if ct.RowsAffected() == 0 {
		return nil, payment.ErrNotFound
	}
	return r.GetByOrderID(ctx, orderID)
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, (*string)(&p.Status), &p.Amount, &p.Method,
		&p.TransactionRef, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
