package model

import (
	"github.com/shopspring/decimal"
)

// CreateCouponRequest is the DTO for creating a coupon.
type CreateCouponRequest struct {
	CouponCode  string     `json:"couponCode" validate:"required,couponcode"`
	Name        string     `json:"name" validate:"required,notblank,min=3,max=200"`
	Description string     `json:"description" validate:"max=1000"`
	CouponType  CouponType `json:"couponType" validate:"required,oneof=Percentage FixedAmount FirstBooking Seasonal LongStay Referral"`

	// DiscountKind is required for the label types and must agree with
	// CouponType for Percentage and FixedAmount.
	DiscountKind      DiscountKind     `json:"discountKind" validate:"omitempty,oneof=percentage fixed_amount"`
	DiscountValue     decimal.Decimal  `json:"discountValue" validate:"gt=0"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount" validate:"omitempty,gt=0"`

	StartDate Date `json:"startDate" validate:"required"`
	EndDate   Date `json:"endDate" validate:"required"`

	TotalUsageLimit      *int             `json:"totalUsageLimit" validate:"omitempty,gte=1"`
	UsagePerUser         *int             `json:"usagePerUser" validate:"omitempty,gte=1"`
	MinimumBookingAmount *decimal.Decimal `json:"minimumBookingAmount" validate:"omitempty,gte=0"`
	MinimumNights        *int             `json:"minimumNights" validate:"omitempty,gte=1,lte=365"`
	IsFirstBookingOnly   bool             `json:"isFirstBookingOnly"`
	IsNewUserOnly        bool             `json:"isNewUserOnly"`

	Scope                 CouponScope `json:"scope" validate:"required,oneof=AllHomestays SpecificHomestay MultipleHomestays"`
	SpecificHomestayID    *int64      `json:"specificHomestayId" validate:"omitempty,gt=0"`
	ApplicableHomestayIDs []int64     `json:"applicableHomestayIds" validate:"omitempty,max=500,dive,gt=0"`

	IsActive *bool `json:"isActive"`
	IsPublic bool  `json:"isPublic"`
	Priority int   `json:"priority" validate:"gte=0,lte=100"`
}

// UpdateCouponRequest is a partial update; nil fields are left unchanged.
// The coupon code and audit fields cannot be changed.
type UpdateCouponRequest struct {
	Name        *string     `json:"name" validate:"omitempty,notblank,min=3,max=200"`
	Description *string     `json:"description" validate:"omitempty,max=1000"`
	CouponType  *CouponType `json:"couponType" validate:"omitempty,oneof=Percentage FixedAmount FirstBooking Seasonal LongStay Referral"`

	DiscountKind      *DiscountKind    `json:"discountKind" validate:"omitempty,oneof=percentage fixed_amount"`
	DiscountValue     *decimal.Decimal `json:"discountValue" validate:"omitempty,gt=0"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount" validate:"omitempty,gt=0"`

	StartDate *Date `json:"startDate"`
	EndDate   *Date `json:"endDate"`

	TotalUsageLimit      *int             `json:"totalUsageLimit" validate:"omitempty,gte=1"`
	UsagePerUser         *int             `json:"usagePerUser" validate:"omitempty,gte=1"`
	MinimumBookingAmount *decimal.Decimal `json:"minimumBookingAmount" validate:"omitempty,gte=0"`
	MinimumNights        *int             `json:"minimumNights" validate:"omitempty,gte=1,lte=365"`
	IsFirstBookingOnly   *bool            `json:"isFirstBookingOnly"`
	IsNewUserOnly        *bool            `json:"isNewUserOnly"`

	Scope                 *CouponScope `json:"scope" validate:"omitempty,oneof=AllHomestays SpecificHomestay MultipleHomestays"`
	SpecificHomestayID    *int64       `json:"specificHomestayId" validate:"omitempty,gt=0"`
	ApplicableHomestayIDs []int64      `json:"applicableHomestayIds" validate:"omitempty,max=500,dive,gt=0"`

	IsActive *bool `json:"isActive"`
	IsPublic *bool `json:"isPublic"`
	Priority *int  `json:"priority" validate:"omitempty,gte=0,lte=100"`
}

// BookingContext describes the prospective booking a coupon is checked against.
type BookingContext struct {
	HomestayID     int64           `json:"homestayId" validate:"required,gt=0"`
	BookingAmount  decimal.Decimal `json:"bookingAmount" validate:"gt=0"`
	NumberOfNights int             `json:"numberOfNights" validate:"required,gte=1,lte=365"`
	CheckInDate    Date            `json:"checkInDate"`
	CheckOutDate   Date            `json:"checkOutDate"`
	// BookingID is 0 when validating before a booking exists.
	BookingID int64 `json:"bookingId" validate:"gte=0"`
}

// ValidateCouponRequest is the DTO for POST /api/coupons/validate.
type ValidateCouponRequest struct {
	CouponCode string `json:"couponCode" validate:"required,notblank,max=50"`
	BookingContext
}

// ValidateBestRequest validates several codes against one booking.
type ValidateBestRequest struct {
	CouponCodes []string `json:"couponCodes" validate:"required,min=1,dive,required,notblank,max=50"`
	BookingContext
}

// RedeemCouponRequest applies a validated coupon to a confirmed booking.
type RedeemCouponRequest struct {
	ValidateCouponRequest
	BookingCode string `json:"bookingCode" validate:"max=100"`
}

// Reason is a stable machine-readable code for a validation outcome.
type Reason string

const (
	ReasonNotFound              Reason = "not_found"
	ReasonInvalidRequest        Reason = "invalid_request"
	ReasonInactive              Reason = "inactive"
	ReasonExpired               Reason = "expired"
	ReasonNotYetValid           Reason = "not_yet_valid"
	ReasonUsageLimitReached     Reason = "usage_limit_reached"
	ReasonUserUsageLimitReached Reason = "user_usage_limit_reached"
	ReasonNotApplicableHomestay Reason = "not_applicable_homestay"
	ReasonBelowMinimumAmount    Reason = "below_minimum_amount"
	ReasonBelowMinimumNights    Reason = "below_minimum_nights"
	ReasonFirstBookingOnly      Reason = "first_booking_only"
	ReasonNewUserOnly           Reason = "new_user_only"
)

// CouponValidationResult is the verdict for one coupon against one booking.
type CouponValidationResult struct {
	IsValid        bool            `json:"isValid"`
	Message        string          `json:"message"`
	Reason         Reason          `json:"reason,omitempty"`
	Coupon         *CouponDTO      `json:"coupon,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
}

// ValidateBestResponse carries every per-code verdict and the chosen one.
type ValidateBestResponse struct {
	Results []CouponValidationResult `json:"results"`
	Best    *CouponValidationResult  `json:"best,omitempty"`
}

// UserContext holds the caller facts the gating checks need. A nil
// UsageCount means the caller did not look it up, and the per-user cap is
// not enforced.
type UserContext struct {
	UserID              int64
	UsageCount          *int
	HasCompletedBooking bool
	IsNewUser           bool
}
