// Package engine decides whether a coupon may be applied to a booking and
// how much it takes off. It is a pure computation over an already loaded
// coupon: it never touches storage and never returns an error. Every
// failure, malformed input included, comes back as an invalid result with a
// message meant for the guest.
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

const maxNights = 365

// Engine evaluates coupons. It is safe for concurrent use.
type Engine struct {
	scale int32
	loc   *time.Location
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine that rounds discounts to scale decimal places and
// evaluates validity windows as calendar dates in loc.
func New(scale int32, loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{scale: scale, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the engine's current calendar date.
func (e *Engine) Today() model.Date {
	return model.Today(e.now(), e.loc)
}

// Validate runs the gating checks in order and stops at the first failure.
// A nil coupon means the code did not resolve.
func (e *Engine) Validate(c *model.Coupon, req model.ValidateCouponRequest, user model.UserContext) model.CouponValidationResult {
	if c == nil {
		return e.reject(req, model.ReasonNotFound, "Coupon not found")
	}
	if r, ok := e.checkInput(req); !ok {
		return r
	}

	today := e.Today()

	if !c.IsActive {
		return e.reject(req, model.ReasonInactive, "Coupon is not active")
	}

	if c.NotStarted(today) {
		return e.reject(req, model.ReasonNotYetValid, "Coupon not yet valid")
	}
	if c.IsExpired(today) {
		return e.reject(req, model.ReasonExpired, "Coupon has expired")
	}

	if !c.HasUsageRemaining() {
		return e.reject(req, model.ReasonUsageLimitReached, "Usage limit reached")
	}
	if c.UsagePerUser != nil && user.UsageCount != nil && *user.UsageCount >= *c.UsagePerUser {
		return e.reject(req, model.ReasonUserUsageLimitReached, "You have reached the usage limit for this coupon")
	}

	if !c.AppliesTo(req.HomestayID) {
		return e.reject(req, model.ReasonNotApplicableHomestay, "Coupon not applicable to this homestay")
	}

	if c.MinimumBookingAmount != nil && req.BookingAmount.LessThan(*c.MinimumBookingAmount) {
		return e.reject(req, model.ReasonBelowMinimumAmount,
			fmt.Sprintf("Minimum booking amount is %s", c.MinimumBookingAmount.String()))
	}

	if c.MinimumNights != nil && req.NumberOfNights < *c.MinimumNights {
		return e.reject(req, model.ReasonBelowMinimumNights,
			fmt.Sprintf("Minimum stay is %d nights", *c.MinimumNights))
	}

	if c.IsFirstBookingOnly && user.HasCompletedBooking {
		return e.reject(req, model.ReasonFirstBookingOnly, "Coupon is only valid for your first booking")
	}

	if c.IsNewUserOnly && !user.IsNewUser {
		return e.reject(req, model.ReasonNewUserOnly, "Coupon is only valid for new users")
	}

	discount := e.Discount(c.Discount, req.BookingAmount)
	return model.CouponValidationResult{
		IsValid:        true,
		Message:        "Coupon applied successfully",
		Coupon:         c.ToDTO(today),
		DiscountAmount: discount,
		FinalAmount:    finalAmount(req.BookingAmount, discount),
	}
}

func (e *Engine) checkInput(req model.ValidateCouponRequest) (model.CouponValidationResult, bool) {
	switch {
	case !req.BookingAmount.IsPositive():
		return e.reject(req, model.ReasonInvalidRequest, "Booking amount must be greater than 0"), false
	case req.NumberOfNights < 1 || req.NumberOfNights > maxNights:
		return e.reject(req, model.ReasonInvalidRequest, "Number of nights must be between 1 and 365"), false
	case req.HomestayID <= 0:
		return e.reject(req, model.ReasonInvalidRequest, "Homestay is required"), false
	}
	return model.CouponValidationResult{}, true
}

func (e *Engine) reject(req model.ValidateCouponRequest, reason model.Reason, msg string) model.CouponValidationResult {
	return model.CouponValidationResult{
		IsValid:        false,
		Message:        msg,
		Reason:         reason,
		DiscountAmount: decimal.Zero,
		FinalAmount:    finalAmount(req.BookingAmount, decimal.Zero),
	}
}

func finalAmount(amount, discount decimal.Decimal) decimal.Decimal {
	final := amount.Sub(discount)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}
