package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcore/internal/domain/catalog"
	"github.com/xenking/shopcore/internal/domain/coupon"
	"github.com/xenking/shopcore/internal/domain/order"
)

const (
	// reserveStockSQL is the authoritative stock guard: the WHERE clause
	// makes the decrement conditional, so of two concurrent orders racing
	// for the last unit exactly one affects a row and the other fails.
	reserveStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND active = TRUE AND stock_quantity >= $2`

	releaseStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`

	// incrementCouponUsesSQL bounds the counter: once uses_count reaches
	// max_uses no further row is affected. max_uses = 0 means unlimited.
	incrementCouponUsesSQL = `UPDATE coupons
		SET uses_count = uses_count + 1
		WHERE id = $1 AND (max_uses = 0 OR uses_count < max_uses)`

	// redeemCouponSQL flips the (user, coupon) redemption to used exactly
	// once. The conditional upsert affects zero rows when the row already
	// has used = TRUE, which is the deterministic already-used signal.
	redeemCouponSQL = `INSERT INTO coupon_redemptions (user_id, coupon_id, used, redeemed_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (user_id, coupon_id)
		DO UPDATE SET used = TRUE, redeemed_at = now()
		WHERE coupon_redemptions.used = FALSE`

	insertOrderSQL = `INSERT INTO orders (id, order_number, user_id, status, subtotal, discount_amount,
		tax, shipping_fee, total, coupon_code, shipping_address_id, billing_address_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT id, order_number, user_id, status, subtotal, discount_amount, tax, shipping_fee,
		total, COALESCE(coupon_code, ''), shipping_address_id, billing_address_id, created_at, updated_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, order_id, product_id, quantity, unit_price, total_price
		FROM order_items WHERE order_id = $1 ORDER BY id`

	lockOrderStatusSQL = `SELECT status FROM orders WHERE id = $1 FOR UPDATE`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
// Create and UpdateStatus each run as one transaction.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order atomically with its side effects: every line
// item's stock decrement, the coupon redemption flag, and the bounded coupon
// uses increment. Any failure aborts the whole unit; a partial decrement or
// partial redemption is never observable.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, redeemCouponID *int64) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning checkout transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, item := range o.Items {
		ct, execErr := tx.Exec(ctx, reserveStockSQL, item.ProductID, item.Quantity)
		if execErr != nil {
			err = fmt.Errorf("reserving stock for product %d: %w", item.ProductID, mapError(execErr))
			return err
		}
		if ct.RowsAffected() == 0 {
			err = &catalog.InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
			return err
		}
	}

	if redeemCouponID != nil {
		ct, execErr := tx.Exec(ctx, incrementCouponUsesSQL, *redeemCouponID)
		if execErr != nil {
			err = fmt.Errorf("incrementing coupon uses: %w", mapError(execErr))
			return err
		}
		if ct.RowsAffected() == 0 {
			err = coupon.ErrCouponExhausted
			return err
		}

		ct, execErr = tx.Exec(ctx, redeemCouponSQL, o.UserID, *redeemCouponID)
		if execErr != nil {
			err = fmt.Errorf("redeeming coupon: %w", mapError(execErr))
			return err
		}
		if ct.RowsAffected() == 0 {
			err = coupon.ErrCouponAlreadyUsed
			return err
		}
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.OrderNumber, o.UserID, string(o.Status), o.Subtotal, o.DiscountAmount,
		o.Tax, o.ShippingFee, o.Total, o.CouponCode,
		o.ShippingAddressID, o.BillingAddressID, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		err = fmt.Errorf("creating order %q: %w", o.ID, mapError(err))
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(insertOrderItemSQL,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for range o.Items {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			err = fmt.Errorf("creating order items for %q: %w", o.ID, mapError(execErr))
			return err
		}
	}
	if err = results.Close(); err != nil {
		err = fmt.Errorf("creating order items for %q: %w", o.ID, mapError(err))
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("committing checkout for %q: %w", o.ID, mapError(err))
		return err
	}
	return nil
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}

	return &o, nil
}

// UpdateStatus re-checks the transition table while holding a row lock on
// the order, applies the change, and on cancellation restores each line
// item's stock in the same transaction. Coupon usage is left as consumed.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, next order.Status) (result *order.Order, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning status transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current order.Status
	if err = tx.QueryRow(ctx, lockOrderStatusSQL, id).Scan((*string)(&current)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = order.ErrNotFound
			return nil, err
		}
		err = fmt.Errorf("locking order %q: %w", id, mapError(err))
		return nil, err
	}

	if !current.CanTransitionTo(next) {
		err = &order.InvalidTransitionError{From: current, To: next}
		return nil, err
	}

	if _, err = tx.Exec(ctx, updateOrderStatusSQL, id, string(next)); err != nil {
		err = fmt.Errorf("updating order %q status: %w", id, mapError(err))
		return nil, err
	}

	if next == order.StatusCancelled {
		if err = r.restockItems(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("committing status change for %q: %w", id, mapError(err))
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// restockItems is the compensating action for cancellation: it returns every
// reserved unit to the catalog within the caller's transaction.
func (r *OrderRepository) restockItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	rows, err := tx.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return fmt.Errorf("loading items to restock for %q: %w", orderID, err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("loading items to restock for %q: %w", orderID, err)
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(releaseStockSQL, item.ProductID, item.Quantity)
	}
	results := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("restocking for order %q: %w", orderID, mapError(err))
		}
	}
	return results.Close()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, (*string)(&o.Status),
		&o.Subtotal, &o.DiscountAmount, &o.Tax, &o.ShippingFee, &o.Total,
		&o.CouponCode, &o.ShippingAddressID, &o.BillingAddressID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var item order.Item
	err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductID,
		&item.Quantity, &item.UnitPrice, &item.TotalPrice,
	)
	return item, err
}
