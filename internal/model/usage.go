package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponUsage records one redemption of a coupon against one booking.
// Rows are never updated once written.
type CouponUsage struct {
	ID             int64           `json:"id"`
	CouponID       int64           `json:"couponId"`
	CouponCode     string          `json:"couponCode"`
	UserID         int64           `json:"userId"`
	UserName       string          `json:"userName"`
	BookingID      int64           `json:"bookingId"`
	BookingCode    string          `json:"bookingCode"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	UsedAt         time.Time       `json:"usedAt"`
}

// Actor identifies the caller of a mutating operation.
type Actor struct {
	UserID   int64
	UserName string
}
