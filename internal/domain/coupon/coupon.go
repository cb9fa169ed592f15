// Package coupon implements the coupon ledger: rule definitions, per-user
// redemption state, eligibility checks, and discount calculation.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage discount to the subtotal,
	// optionally capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown, inactive,
	// outside its validity window, or the order does not meet its minimum
	// order amount.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExhausted is returned when a coupon has reached its maximum
	// number of uses.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrCouponAlreadyUsed is returned when the user has already redeemed
	// this coupon.
	ErrCouponAlreadyUsed = errors.New("coupon already used by this user")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
type Rule struct {
	ID             int64
	Code           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MaxDiscount    decimal.Decimal // zero means uncapped
	MinOrderAmount decimal.Decimal
	MaxUses        int // zero means unlimited
	UsesCount      int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Active         bool
}

// Redemption records one user's redemption state for one coupon.
// At most one row exists per (user, coupon) pair.
type Redemption struct {
	UserID     int64
	CouponID   int64
	Used       bool
	RedeemedAt *time.Time
}

// Ledger provides lookup of coupon rules and per-user redemption state.
// The used=true flip itself happens inside the order repository's checkout
// transaction so that it commits or aborts together with the order.
type Ledger interface {
	// FindByCode returns the rule for code, or ErrInvalidCoupon when no
	// such coupon exists.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// FindRedemption returns the redemption row for the pair, or nil when
	// the user has never touched this coupon.
	FindRedemption(ctx context.Context, userID, couponID int64) (*Redemption, error)
	// ListCodes returns every known coupon code, used to build the
	// in-process code prefilter.
	ListCodes(ctx context.Context) ([]string, error)
}
