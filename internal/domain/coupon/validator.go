package coupon

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const codeFilterFPR = 0.001

// CodeFilter is a bloom filter over the known coupon codes. It rejects
// bogus codes without a database round trip. False positives fall through
// to the ledger lookup, so correctness never depends on the filter.
type CodeFilter struct {
	filter *bloom.BloomFilter
}

// NewCodeFilter builds a filter from the full list of known codes.
func NewCodeFilter(codes []string) *CodeFilter {
	n := uint(len(codes))
	if n == 0 {
		n = 1
	}
	f := bloom.NewWithEstimates(n, codeFilterFPR)
	for _, code := range codes {
		f.AddString(code)
	}
	return &CodeFilter{filter: f}
}

// MayContain reports whether code is possibly a known coupon code.
func (cf *CodeFilter) MayContain(code string) bool {
	return cf.filter.TestString(code)
}

// Validator checks coupon eligibility against the ledger: existence,
// active flag, validity window, minimum order amount, usage limits, and
// the caller's own redemption state.
type Validator struct {
	ledger Ledger
	filter *CodeFilter
	now    func() time.Time
}

// NewValidator creates a Validator backed by the given Ledger. The filter
// may be nil, in which case every lookup hits the ledger.
func NewValidator(ledger Ledger, filter *CodeFilter) *Validator {
	return &Validator{ledger: ledger, filter: filter, now: time.Now}
}

// CheckEligibility verifies that userID may redeem the coupon identified by
// code against an order with the given undiscounted subtotal. On success it
// returns the rule and the computed discount.
//
// This is the synchronous pre-validation pass: the checkout transaction
// re-enforces the usage limit and the once-only redemption with conditional
// updates, so a race lost after this check still aborts cleanly.
func (v *Validator) CheckEligibility(ctx context.Context, userID int64, code string, subtotal decimal.Decimal) (*Rule, Discount, error) {
	if v.filter != nil && !v.filter.MayContain(code) {
		return nil, Discount{}, ErrInvalidCoupon
	}

	rule, err := v.ledger.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, Discount{}, ErrInvalidCoupon
		}
		return nil, Discount{}, errors.Wrap(err, "lookup coupon")
	}

	if !rule.Active {
		return nil, Discount{}, ErrInvalidCoupon
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, Discount{}, ErrInvalidCoupon
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, Discount{}, ErrInvalidCoupon
	}

	if subtotal.LessThan(rule.MinOrderAmount) {
		return nil, Discount{}, ErrInvalidCoupon
	}

	if rule.MaxUses > 0 && rule.UsesCount >= rule.MaxUses {
		return nil, Discount{}, ErrCouponExhausted
	}

	redemption, err := v.ledger.FindRedemption(ctx, userID, rule.ID)
	if err != nil {
		return nil, Discount{}, errors.Wrap(err, "lookup redemption")
	}
	if redemption != nil && redemption.Used {
		return nil, Discount{}, ErrCouponAlreadyUsed
	}

	discount, err := Apply(rule, subtotal)
	if err != nil {
		return nil, Discount{}, err
	}

	return rule, discount, nil
}
