package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcore/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, discount_type, value, max_discount_amount, min_order_amount,
		max_uses, uses_count, valid_from, valid_until, active
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	getRedemptionSQL = `SELECT user_id, coupon_id, used, redeemed_at
		FROM coupon_redemptions WHERE user_id = $1 AND coupon_id = $2`

	listCouponCodesSQL = `SELECT code FROM coupons`
)

var _ coupon.Ledger = (*CouponRepository)(nil)

// CouponRepository implements coupon.Ledger backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// FindRedemption returns the redemption state for the (user, coupon) pair,
// or nil when the user has never touched this coupon.
func (r *CouponRepository) FindRedemption(ctx context.Context, userID, couponID int64) (*coupon.Redemption, error) {
	rows, err := r.pool.Query(ctx, getRedemptionSQL, userID, couponID)
	if err != nil {
		return nil, fmt.Errorf("finding redemption (%d, %d): %w", userID, couponID, err)
	}

	red, err := pgx.CollectExactlyOneRow(rows, scanRedemption)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding redemption (%d, %d): %w", userID, couponID, err)
	}
	return &red, nil
}

// ListCodes returns every coupon code, used to build the in-process bloom
// prefilter at startup.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule        coupon.Rule
		maxDiscount *decimal.Decimal
	)
	err := row.Scan(
		&rule.ID, &rule.Code, (*string)(&rule.DiscountType), &rule.Value, &maxDiscount,
		&rule.MinOrderAmount, &rule.MaxUses, &rule.UsesCount,
		&rule.ValidFrom, &rule.ValidUntil, &rule.Active,
	)
	if maxDiscount != nil {
		rule.MaxDiscount = *maxDiscount
	}
	return rule, err
}

func scanRedemption(row pgx.CollectableRow) (coupon.Redemption, error) {
	var (
		red        coupon.Redemption
		redeemedAt *time.Time
	)
	err := row.Scan(&red.UserID, &red.CouponID, &red.Used, &redeemedAt)
	red.RedeemedAt = redeemedAt
	return red, err
}
