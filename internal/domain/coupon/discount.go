package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount holds the computed discount amount for an eligible coupon.
type Discount struct {
	Amount decimal.Decimal
	Code   string
}

// Apply calculates the discount the rule grants on the given order subtotal.
// The subtotal is the undiscounted sum of line item totals. The result is
// rounded to 2 decimal places and never exceeds the subtotal.
func Apply(rule *Rule, subtotal decimal.Decimal) (Discount, error) {
	var amount decimal.Decimal

	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() && amount.GreaterThan(rule.MaxDiscount) {
			amount = rule.MaxDiscount
		}
	case DiscountFixed:
		amount = rule.Value
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		Amount: amount.Round(2),
		Code:   rule.Code,
	}, nil
}
