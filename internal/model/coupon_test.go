package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCoupon() *Coupon {
	return &Coupon{
		Code: "LONGSTAY7",
		Name: "Long stay",
		Type: CouponTypeLongStay,
		Discount: DiscountRule{
			Kind:  DiscountKindPercentage,
			Value: decimal.NewFromInt(15),
		},
		StartDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC),
		Scope:     ScopeAllHomestays,
		IsActive:  true,
	}
}

func TestCoupon_Check(t *testing.T) {
	require.NoError(t, validCoupon().Check())

	one := 1
	zero := 0
	homestay := int64(4)
	cap0 := decimal.Zero
	capFixed := decimal.NewFromInt(10)
	negative := decimal.NewFromInt(-1)
	nights := 400
	fine := decimal.RequireFromString("1000.00001")

	testCases := []struct {
		name    string
		mutate  func(c *Coupon)
		wantErr string
	}{
		{"lowercase_code", func(c *Coupon) { c.Code = "longstay" }, "couponCode must be"},
		{"unknown_type", func(c *Coupon) { c.Type = "Bogus" }, "unknown couponType"},
		{"missing_dates", func(c *Coupon) { c.EndDate = time.Time{} }, "startDate and endDate are required"},
		{"reversed_window", func(c *Coupon) { c.EndDate = c.StartDate.AddDate(0, 0, -1) }, "endDate must not be before startDate"},
		{"percentage_over_100", func(c *Coupon) { c.Discount.Value = decimal.NewFromInt(101) }, "must not exceed 100"},
		{"fixed_with_cap", func(c *Coupon) {
			c.Discount.Kind = DiscountKindFixedAmount
			c.Discount.Cap = &capFixed
		}, "maxDiscountAmount only applies"},
		{"unknown_kind", func(c *Coupon) { c.Discount.Kind = "bogo" }, "unknown discountKind"},
		{"zero_value", func(c *Coupon) { c.Discount.Value = decimal.Zero }, "discountValue must be greater than 0"},
		{"zero_cap", func(c *Coupon) { c.Discount.Cap = &cap0 }, "maxDiscountAmount must be greater than 0"},
		{"value_too_precise", func(c *Coupon) { c.Discount.Value = decimal.RequireFromString("12.00005") }, "discountValue must have at most 4 decimal places"},
		{"cap_too_precise", func(c *Coupon) { c.Discount.Cap = &fine }, "maxDiscountAmount must have at most 4 decimal places"},
		{"minimum_too_precise", func(c *Coupon) { c.MinimumBookingAmount = &fine }, "minimumBookingAmount must have at most 4 decimal places"},
		{"all_with_ids", func(c *Coupon) { c.ApplicableHomestayIDs = []int64{1} }, "takes no homestay ids"},
		{"specific_without_id", func(c *Coupon) { c.Scope = ScopeSpecificHomestay }, "specificHomestayId is required"},
		{"specific_with_list", func(c *Coupon) {
			c.Scope = ScopeSpecificHomestay
			c.SpecificHomestayID = &homestay
			c.ApplicableHomestayIDs = []int64{1}
		}, "applicableHomestayIds only applies"},
		{"multiple_without_ids", func(c *Coupon) { c.Scope = ScopeMultipleHomestays }, "applicableHomestayIds is required"},
		{"multiple_with_specific", func(c *Coupon) {
			c.Scope = ScopeMultipleHomestays
			c.ApplicableHomestayIDs = []int64{1, 2}
			c.SpecificHomestayID = &homestay
		}, "specificHomestayId only applies"},
		{"unknown_scope", func(c *Coupon) { c.Scope = "Everywhere" }, "unknown scope"},
		{"zero_limit", func(c *Coupon) { c.TotalUsageLimit = &zero }, "totalUsageLimit must be at least 1"},
		{"count_over_limit", func(c *Coupon) {
			c.TotalUsageLimit = &one
			c.CurrentUsageCount = 2
		}, "must not be below currentUsageCount"},
		{"zero_per_user", func(c *Coupon) { c.UsagePerUser = &zero }, "usagePerUser must be at least 1"},
		{"negative_minimum", func(c *Coupon) { c.MinimumBookingAmount = &negative }, "must not be negative"},
		{"too_many_nights", func(c *Coupon) { c.MinimumNights = &nights }, "minimumNights must be between"},
		{"priority_out_of_range", func(c *Coupon) { c.Priority = 101 }, "priority must be between"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCoupon()
			tc.mutate(c)

			err := c.Check()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestCoupon_Window(t *testing.T) {
	c := validCoupon()
	day := func(m time.Month, d int) Date { return NewDate(time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)) }

	assert.True(t, c.NotStarted(day(10, 31)))
	assert.False(t, c.NotStarted(day(11, 1)), "start day is inclusive")
	assert.False(t, c.IsExpired(day(11, 30)), "end day is inclusive")
	assert.True(t, c.IsExpired(day(12, 1)))

	assert.True(t, c.IsAvailable(day(11, 15)))
	c.IsActive = false
	assert.False(t, c.IsAvailable(day(11, 15)))
}

func TestCoupon_HasUsageRemaining(t *testing.T) {
	c := validCoupon()
	assert.True(t, c.HasUsageRemaining(), "no limit means unlimited")

	limit := 2
	c.TotalUsageLimit = &limit
	c.CurrentUsageCount = 1
	assert.True(t, c.HasUsageRemaining())
	c.CurrentUsageCount = 2
	assert.False(t, c.HasUsageRemaining())
}

func TestCoupon_AppliesTo(t *testing.T) {
	c := validCoupon()
	assert.True(t, c.AppliesTo(99))

	specific := int64(4)
	c.Scope = ScopeSpecificHomestay
	c.SpecificHomestayID = &specific
	assert.True(t, c.AppliesTo(4))
	assert.False(t, c.AppliesTo(5))

	c.Scope = ScopeMultipleHomestays
	c.SpecificHomestayID = nil
	c.ApplicableHomestayIDs = []int64{3, 9}
	assert.True(t, c.AppliesTo(9))
	assert.False(t, c.AppliesTo(4))

	c.Scope = "Unknown"
	assert.False(t, c.AppliesTo(9))
}

func TestCoupon_ToDTO(t *testing.T) {
	c := validCoupon()
	c.ID = 12
	c.StartDate = time.Date(2026, 11, 1, 23, 0, 0, 0, time.FixedZone("WITA", 8*3600))

	dto := c.ToDTO(NewDate(time.Date(2026, 12, 5, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, int64(12), dto.ID)
	assert.Equal(t, "LONGSTAY7", dto.CouponCode)
	assert.Equal(t, DiscountKindPercentage, dto.DiscountKind)
	assert.Equal(t, "2026-11-01", dto.StartDate.String())
	assert.True(t, dto.IsExpired)
	assert.False(t, dto.IsAvailable)
	assert.NotNil(t, dto.ApplicableHomestayIDs)
	assert.Empty(t, dto.ApplicableHomestayIDs)

	raw, err := json.Marshal(dto)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"discountValue":15`)
	assert.Contains(t, string(raw), `"startDate":"2026-11-01"`)
	assert.Contains(t, string(raw), `"applicableHomestayIds":[]`)
	assert.NotContains(t, string(raw), "maxDiscountAmount")
}

func TestKindFor(t *testing.T) {
	kind, ok := KindFor(CouponTypePercentage)
	assert.True(t, ok)
	assert.Equal(t, DiscountKindPercentage, kind)

	kind, ok = KindFor(CouponTypeFixedAmount)
	assert.True(t, ok)
	assert.Equal(t, DiscountKindFixedAmount, kind)

	_, ok = KindFor(CouponTypeSeasonal)
	assert.False(t, ok)
}

func TestFitsMoneyPlaces(t *testing.T) {
	for _, v := range []string{"1", "0.5", "10.0050", "12.3456", "99.00000"} {
		assert.True(t, FitsMoneyPlaces(decimal.RequireFromString(v)), v)
	}
	for _, v := range []string{"0.00001", "10.00501", "1.123456"} {
		assert.False(t, FitsMoneyPlaces(decimal.RequireFromString(v)), v)
	}
}

func TestValidCouponCode(t *testing.T) {
	for _, code := range []string{"ABC", "SUMMER-2026", "NEW_USER", "A1B2C3"} {
		assert.True(t, ValidCouponCode(code), code)
	}
	for _, code := range []string{"AB", "summer", "HAS SPACE", "PROMO!", ""} {
		assert.False(t, ValidCouponCode(code), code)
	}
}
