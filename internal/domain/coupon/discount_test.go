package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		rule       *Rule
		subtotal   decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    bool
	}{
		{
			name: "percentage discount",
			rule: &Rule{
				Code:         "SAVE10",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(10),
			},
			subtotal:   decimal.NewFromInt(200),
			wantAmount: decimal.NewFromInt(20),
		},
		{
			name: "percentage discount rounds to cents",
			rule: &Rule{
				Code:         "SAVE10",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(10),
			},
			subtotal:   decimal.RequireFromString("19.99"),
			wantAmount: decimal.RequireFromString("2.00"),
		},
		{
			name: "percentage capped by max discount",
			rule: &Rule{
				Code:         "SAVE10",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(10),
				MaxDiscount:  decimal.NewFromInt(25),
			},
			subtotal:   decimal.NewFromInt(1000),
			wantAmount: decimal.NewFromInt(25),
		},
		{
			name: "percentage under cap unaffected",
			rule: &Rule{
				Code:         "SAVE10",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(10),
				MaxDiscount:  decimal.NewFromInt(25),
			},
			subtotal:   decimal.NewFromInt(100),
			wantAmount: decimal.NewFromInt(10),
		},
		{
			name: "fixed discount",
			rule: &Rule{
				Code:         "SAVE50",
				DiscountType: DiscountFixed,
				Value:        decimal.NewFromInt(50),
			},
			subtotal:   decimal.NewFromInt(300),
			wantAmount: decimal.NewFromInt(50),
		},
		{
			name: "fixed discount capped at subtotal",
			rule: &Rule{
				Code:         "SAVE50",
				DiscountType: DiscountFixed,
				Value:        decimal.NewFromInt(50),
			},
			subtotal:   decimal.NewFromInt(30),
			wantAmount: decimal.NewFromInt(30),
		},
		{
			name: "hundred percent discount equals subtotal",
			rule: &Rule{
				Code:         "FREE",
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(100),
			},
			subtotal:   decimal.RequireFromString("42.50"),
			wantAmount: decimal.RequireFromString("42.50"),
		},
		{
			name: "unknown discount type",
			rule: &Rule{
				Code:         "WEIRD",
				DiscountType: DiscountType("bogus"),
				Value:        decimal.NewFromInt(5),
			},
			subtotal: decimal.NewFromInt(100),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.rule, tt.subtotal)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.rule.Code, got.Code)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}
