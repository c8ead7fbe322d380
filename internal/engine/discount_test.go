package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

func TestDiscount_Percentage(t *testing.T) {
	e := newTestEngine()

	testCases := []struct {
		name   string
		amount string
		value  string
		cap    string
		want   string
	}{
		{name: "uncapped", amount: "1000", value: "15", want: "150"},
		{name: "cap_not_reached", amount: "1000", value: "15", cap: "200", want: "150"},
		{name: "cap_reached", amount: "2000000", value: "10", cap: "100000", want: "100000"},
		{name: "hundred_percent", amount: "999.99", value: "100", want: "999.99"},
		{name: "fractional_percent", amount: "200", value: "12.5", want: "25"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rule := model.DiscountRule{Kind: model.DiscountKindPercentage, Value: dec(tc.value)}
			if tc.cap != "" {
				rule.Cap = decPtr(tc.cap)
			}
			assertMoney(t, tc.want, e.Discount(rule, dec(tc.amount)))
		})
	}
}

func TestDiscount_FixedAmountBounds(t *testing.T) {
	e := newTestEngine()
	rule := model.DiscountRule{Kind: model.DiscountKindFixedAmount, Value: dec("50000")}

	for _, amount := range []string{"1", "30000", "49999.99", "50000", "50000.01", "1000000"} {
		d := e.Discount(rule, dec(amount))
		assert.False(t, d.IsNegative(), amount)
		assert.False(t, d.GreaterThan(dec(amount)), "discount %s exceeds booking %s", d, amount)
		if dec(amount).LessThan(dec("50000")) {
			assertMoney(t, amount, d)
		} else {
			assertMoney(t, "50000", d)
		}
	}
}

func TestDiscount_RoundsHalfUp(t *testing.T) {
	e := newTestEngine()
	rule := model.DiscountRule{Kind: model.DiscountKindPercentage, Value: dec("5")}

	// 5% of 0.10 is exactly 0.005: half-up gives 0.01, half-even would give 0.00.
	assertMoney(t, "0.01", e.Discount(rule, dec("0.10")))
	// 5% of 0.30 is 0.015: half-even would also round up, half-up must agree.
	assertMoney(t, "0.02", e.Discount(rule, dec("0.30")))
	// 5% of 10.05 is 0.5025, below the half.
	assertMoney(t, "0.50", e.Discount(rule, dec("10.05")))
}

func TestDiscount_ZeroScaleCurrency(t *testing.T) {
	e := New(0, time.UTC, WithClock(func() time.Time { return fixedNow }))
	rule := model.DiscountRule{Kind: model.DiscountKindPercentage, Value: dec("7")}

	// 7% of 150 = 10.5 -> 11
	assertMoney(t, "11", e.Discount(rule, dec("150")))
	// 7% of 149 = 10.43 -> 10
	assertMoney(t, "10", e.Discount(rule, dec("149")))
}

func TestDiscount_RoundingNeverExceedsBooking(t *testing.T) {
	e := newTestEngine()
	rule := model.DiscountRule{Kind: model.DiscountKindFixedAmount, Value: dec("20")}

	d := e.Discount(rule, dec("10.005"))
	assert.False(t, d.GreaterThan(dec("10.005")))
}

func TestDiscount_CapAppliedAfterRounding(t *testing.T) {
	e := newTestEngine()
	rule := model.DiscountRule{Kind: model.DiscountKindPercentage, Value: dec("50"), Cap: decPtr("10.005")}

	// 50% of 100 is 50, capped at 10.005; half-up on the cap would give 10.01.
	d := e.Discount(rule, dec("100"))
	assertMoney(t, "10", d)
	assert.False(t, d.GreaterThan(dec("10.005")))

	// Just under the cap, the rounded value stays within it.
	rule.Cap = decPtr("10.01")
	assertMoney(t, "10.01", e.Discount(rule, dec("20.015")))
}

func TestDiscount_UnknownKindIsZero(t *testing.T) {
	e := newTestEngine()
	rule := model.DiscountRule{Kind: "bogus", Value: dec("10")}
	assertMoney(t, "0", e.Discount(rule, dec("100")))
}

func validResult(id int64, priority int, discount string) model.CouponValidationResult {
	return model.CouponValidationResult{
		IsValid:        true,
		Coupon:         &model.CouponDTO{ID: id, Priority: priority},
		DiscountAmount: dec(discount),
	}
}

func TestBest(t *testing.T) {
	t.Run("highest_priority_wins", func(t *testing.T) {
		results := []model.CouponValidationResult{
			validResult(1, 10, "90000"),
			validResult(2, 50, "1000"),
			validResult(3, 20, "50000"),
		}
		best := Best(results)
		require.NotNil(t, best)
		assert.Equal(t, int64(2), best.Coupon.ID)
	})

	t.Run("tie_goes_to_larger_discount", func(t *testing.T) {
		results := []model.CouponValidationResult{
			validResult(1, 10, "1000"),
			validResult(2, 10, "2000"),
		}
		assert.Equal(t, int64(2), Best(results).Coupon.ID)
	})

	t.Run("full_tie_goes_to_lower_id", func(t *testing.T) {
		results := []model.CouponValidationResult{
			validResult(7, 10, "1000"),
			validResult(3, 10, "1000"),
		}
		assert.Equal(t, int64(3), Best(results).Coupon.ID)
	})

	t.Run("invalid_results_are_skipped", func(t *testing.T) {
		results := []model.CouponValidationResult{
			{IsValid: false, Reason: model.ReasonExpired},
			validResult(4, 0, "10"),
		}
		assert.Equal(t, int64(4), Best(results).Coupon.ID)
	})

	t.Run("none_valid", func(t *testing.T) {
		results := []model.CouponValidationResult{
			{IsValid: false, Reason: model.ReasonNotFound},
		}
		assert.Nil(t, Best(results))
		assert.Nil(t, Best(nil))
	})
}
