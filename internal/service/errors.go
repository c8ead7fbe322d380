package service

import "errors"

var (
	// ErrCouponExists is returned when attempting to create a coupon whose code is taken
	ErrCouponExists = errors.New("coupon already exists")

	// ErrCouponNotFound is returned when a coupon cannot be found
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidCoupon is returned when a create or update would break a coupon invariant
	ErrInvalidCoupon = errors.New("invalid coupon")

	// ErrBookingAlreadyHasCoupon is returned when a booking already carries a redeemed coupon
	ErrBookingAlreadyHasCoupon = errors.New("booking already has a coupon")

	// ErrUsageLimitReached is returned when the global usage cap is hit at write time
	ErrUsageLimitReached = errors.New("coupon usage limit reached")

	// ErrCouponNotRedeemable is returned when the eligibility checks reject a redemption
	ErrCouponNotRedeemable = errors.New("coupon not redeemable")
)
