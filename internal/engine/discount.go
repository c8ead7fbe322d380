package engine

import (
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Discount computes how much rule takes off amount, rounded half-up to the
// engine's currency scale. The result is never negative, never above the
// cap and never larger than amount.
func (e *Engine) Discount(rule model.DiscountRule, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !rule.Value.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch rule.Kind {
	case model.DiscountKindPercentage:
		d = amount.Mul(rule.Value).Div(hundred)
	case model.DiscountKindFixedAmount:
		d = rule.Value
	default:
		return decimal.Zero
	}

	// Round rounds half away from zero, which is half-up for d >= 0.
	d = d.Round(e.scale)

	// Bounds are applied after rounding. A cap finer than the currency is
	// floored to it so rounding cannot carry the discount past the cap.
	if rule.Kind == model.DiscountKindPercentage && rule.Cap != nil {
		d = decimal.Min(d, rule.Cap.RoundFloor(e.scale))
	}
	return decimal.Min(d, amount)
}

// Best picks the coupon to redeem among several verdicts for the same
// booking. Only valid results are considered. Higher priority wins, then the
// larger discount, then the lower coupon id. Returns nil when none is valid.
func Best(results []model.CouponValidationResult) *model.CouponValidationResult {
	var best *model.CouponValidationResult
	for i := range results {
		r := &results[i]
		if !r.IsValid || r.Coupon == nil {
			continue
		}
		if best == nil || outranks(r, best) {
			best = r
		}
	}
	return best
}

func outranks(a, b *model.CouponValidationResult) bool {
	if a.Coupon.Priority != b.Coupon.Priority {
		return a.Coupon.Priority > b.Coupon.Priority
	}
	if c := a.DiscountAmount.Cmp(b.DiscountAmount); c != 0 {
		return c > 0
	}
	return a.Coupon.ID < b.Coupon.ID
}
