package model

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money goes over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// CouponType is a classification label for reporting. It does not decide
// the arithmetic; DiscountRule does.
type CouponType string

const (
	CouponTypePercentage   CouponType = "Percentage"
	CouponTypeFixedAmount  CouponType = "FixedAmount"
	CouponTypeFirstBooking CouponType = "FirstBooking"
	CouponTypeSeasonal     CouponType = "Seasonal"
	CouponTypeLongStay     CouponType = "LongStay"
	CouponTypeReferral     CouponType = "Referral"
)

// Valid reports whether t is a known coupon type.
func (t CouponType) Valid() bool {
	switch t {
	case CouponTypePercentage, CouponTypeFixedAmount, CouponTypeFirstBooking,
		CouponTypeSeasonal, CouponTypeLongStay, CouponTypeReferral:
		return true
	}
	return false
}

// CouponScope restricts which homestays a coupon can be applied to.
type CouponScope string

const (
	ScopeAllHomestays      CouponScope = "AllHomestays"
	ScopeSpecificHomestay  CouponScope = "SpecificHomestay"
	ScopeMultipleHomestays CouponScope = "MultipleHomestays"
)

// Valid reports whether s is a known scope.
func (s CouponScope) Valid() bool {
	switch s {
	case ScopeAllHomestays, ScopeSpecificHomestay, ScopeMultipleHomestays:
		return true
	}
	return false
}

// DiscountKind selects the discount arithmetic.
type DiscountKind string

const (
	DiscountKindPercentage  DiscountKind = "percentage"
	DiscountKindFixedAmount DiscountKind = "fixed_amount"
)

// KindFor returns the discount kind implied by a coupon type. The label
// types (FirstBooking, Seasonal, LongStay, Referral) imply nothing and must
// name their kind explicitly.
func KindFor(t CouponType) (DiscountKind, bool) {
	switch t {
	case CouponTypePercentage:
		return DiscountKindPercentage, true
	case CouponTypeFixedAmount:
		return DiscountKindFixedAmount, true
	}
	return "", false
}

// DiscountRule says how much a coupon takes off. Cap is only meaningful for
// the percentage kind.
type DiscountRule struct {
	Kind  DiscountKind     `json:"kind"`
	Value decimal.Decimal  `json:"value"`
	Cap   *decimal.Decimal `json:"cap,omitempty"`
}

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,50}$`)

// ValidCouponCode reports whether code matches the stored code format.
func ValidCouponCode(code string) bool {
	return couponCodePattern.MatchString(code)
}

var hundred = decimal.NewFromInt(100)

// MoneyPlaces is how many decimal places the money columns keep.
const MoneyPlaces = 4

// FitsMoneyPlaces reports whether d is stored without rounding.
func FitsMoneyPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// Coupon is a discount rule identified by its code.
type Coupon struct {
	ID          int64        `json:"id"`
	Code        string       `json:"couponCode"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        CouponType   `json:"couponType"`
	Discount    DiscountRule `json:"discount"`

	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`

	TotalUsageLimit   *int `json:"totalUsageLimit,omitempty"`
	CurrentUsageCount int  `json:"currentUsageCount"`
	UsagePerUser      *int `json:"usagePerUser,omitempty"`

	MinimumBookingAmount *decimal.Decimal `json:"minimumBookingAmount,omitempty"`
	MinimumNights        *int             `json:"minimumNights,omitempty"`
	IsFirstBookingOnly   bool             `json:"isFirstBookingOnly"`
	IsNewUserOnly        bool             `json:"isNewUserOnly"`

	Scope                 CouponScope `json:"scope"`
	SpecificHomestayID    *int64      `json:"specificHomestayId,omitempty"`
	ApplicableHomestayIDs []int64     `json:"applicableHomestayIds,omitempty"`

	IsActive bool `json:"isActive"`
	IsPublic bool `json:"isPublic"`
	Priority int  `json:"priority"`

	CreatedByUserID int64     `json:"createdByUserId"`
	CreatedByName   string    `json:"createdByName"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NotStarted reports whether today is before the first valid day.
func (c *Coupon) NotStarted(today Date) bool {
	return today.Before(NewDate(c.StartDate).Time)
}

// IsExpired reports whether today is past the last valid day.
func (c *Coupon) IsExpired(today Date) bool {
	return today.After(NewDate(c.EndDate).Time)
}

// HasUsageRemaining reports whether the global usage cap still has room.
func (c *Coupon) HasUsageRemaining() bool {
	return c.TotalUsageLimit == nil || c.CurrentUsageCount < *c.TotalUsageLimit
}

// IsAvailable is active, not expired and with usage remaining.
func (c *Coupon) IsAvailable(today Date) bool {
	return c.IsActive && !c.IsExpired(today) && c.HasUsageRemaining()
}

// AppliesTo reports whether the coupon's scope covers homestayID.
func (c *Coupon) AppliesTo(homestayID int64) bool {
	switch c.Scope {
	case ScopeAllHomestays:
		return true
	case ScopeSpecificHomestay:
		return c.SpecificHomestayID != nil && *c.SpecificHomestayID == homestayID
	case ScopeMultipleHomestays:
		return slices.Contains(c.ApplicableHomestayIDs, homestayID)
	}
	return false
}

// Check verifies the invariants every stored coupon must satisfy.
func (c *Coupon) Check() error {
	if !ValidCouponCode(c.Code) {
		return errors.New("couponCode must be 3-50 uppercase letters, digits, '-' or '_'")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unknown couponType %q", c.Type)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return errors.New("startDate and endDate are required")
	}
	if NewDate(c.EndDate).Before(NewDate(c.StartDate).Time) {
		return errors.New("endDate must not be before startDate")
	}

	switch c.Discount.Kind {
	case DiscountKindPercentage:
		if c.Discount.Value.GreaterThan(hundred) {
			return errors.New("percentage discountValue must not exceed 100")
		}
	case DiscountKindFixedAmount:
		if c.Discount.Cap != nil {
			return errors.New("maxDiscountAmount only applies to percentage discounts")
		}
	default:
		return fmt.Errorf("unknown discountKind %q", c.Discount.Kind)
	}
	if !c.Discount.Value.IsPositive() {
		return errors.New("discountValue must be greater than 0")
	}
	if c.Discount.Cap != nil && !c.Discount.Cap.IsPositive() {
		return errors.New("maxDiscountAmount must be greater than 0")
	}
	if !FitsMoneyPlaces(c.Discount.Value) {
		return fmt.Errorf("discountValue must have at most %d decimal places", MoneyPlaces)
	}
	if c.Discount.Cap != nil && !FitsMoneyPlaces(*c.Discount.Cap) {
		return fmt.Errorf("maxDiscountAmount must have at most %d decimal places", MoneyPlaces)
	}

	switch c.Scope {
	case ScopeAllHomestays:
		if c.SpecificHomestayID != nil || len(c.ApplicableHomestayIDs) > 0 {
			return errors.New("AllHomestays scope takes no homestay ids")
		}
	case ScopeSpecificHomestay:
		if c.SpecificHomestayID == nil || *c.SpecificHomestayID <= 0 {
			return errors.New("specificHomestayId is required for SpecificHomestay scope")
		}
		if len(c.ApplicableHomestayIDs) > 0 {
			return errors.New("applicableHomestayIds only applies to MultipleHomestays scope")
		}
	case ScopeMultipleHomestays:
		if len(c.ApplicableHomestayIDs) == 0 {
			return errors.New("applicableHomestayIds is required for MultipleHomestays scope")
		}
		if c.SpecificHomestayID != nil {
			return errors.New("specificHomestayId only applies to SpecificHomestay scope")
		}
	default:
		return fmt.Errorf("unknown scope %q", c.Scope)
	}

	if c.TotalUsageLimit != nil {
		if *c.TotalUsageLimit < 1 {
			return errors.New("totalUsageLimit must be at least 1")
		}
		if c.CurrentUsageCount > *c.TotalUsageLimit {
			return errors.New("totalUsageLimit must not be below currentUsageCount")
		}
	}
	if c.UsagePerUser != nil && *c.UsagePerUser < 1 {
		return errors.New("usagePerUser must be at least 1")
	}
	if c.MinimumBookingAmount != nil && c.MinimumBookingAmount.IsNegative() {
		return errors.New("minimumBookingAmount must not be negative")
	}
	if c.MinimumBookingAmount != nil && !FitsMoneyPlaces(*c.MinimumBookingAmount) {
		return fmt.Errorf("minimumBookingAmount must have at most %d decimal places", MoneyPlaces)
	}
	if c.MinimumNights != nil && (*c.MinimumNights < 1 || *c.MinimumNights > 365) {
		return errors.New("minimumNights must be between 1 and 365")
	}
	if c.Priority < 0 || c.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	return nil
}

// ToDTO renders the coupon for the API, deriving the read-only fields as of today.
func (c *Coupon) ToDTO(today Date) *CouponDTO {
	ids := c.ApplicableHomestayIDs
	if ids == nil {
		ids = []int64{}
	}
	return &CouponDTO{
		ID:                    c.ID,
		CouponCode:            c.Code,
		Name:                  c.Name,
		Description:           c.Description,
		CouponType:            c.Type,
		DiscountKind:          c.Discount.Kind,
		DiscountValue:         c.Discount.Value,
		MaxDiscountAmount:     c.Discount.Cap,
		StartDate:             NewDate(c.StartDate),
		EndDate:               NewDate(c.EndDate),
		TotalUsageLimit:       c.TotalUsageLimit,
		CurrentUsageCount:     c.CurrentUsageCount,
		UsagePerUser:          c.UsagePerUser,
		MinimumBookingAmount:  c.MinimumBookingAmount,
		MinimumNights:         c.MinimumNights,
		IsFirstBookingOnly:    c.IsFirstBookingOnly,
		IsNewUserOnly:         c.IsNewUserOnly,
		Scope:                 c.Scope,
		SpecificHomestayID:    c.SpecificHomestayID,
		ApplicableHomestayIDs: ids,
		IsActive:              c.IsActive,
		IsPublic:              c.IsPublic,
		Priority:              c.Priority,
		IsExpired:             c.IsExpired(today),
		IsAvailable:           c.IsAvailable(today),
		CreatedByUserID:       c.CreatedByUserID,
		CreatedByName:         c.CreatedByName,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

// CouponDTO is the API representation of a coupon.
type CouponDTO struct {
	ID                    int64            `json:"id"`
	CouponCode            string           `json:"couponCode"`
	Name                  string           `json:"name"`
	Description           string           `json:"description"`
	CouponType            CouponType       `json:"couponType"`
	DiscountKind          DiscountKind     `json:"discountKind"`
	DiscountValue         decimal.Decimal  `json:"discountValue"`
	MaxDiscountAmount     *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	StartDate             Date             `json:"startDate"`
	EndDate               Date             `json:"endDate"`
	TotalUsageLimit       *int             `json:"totalUsageLimit,omitempty"`
	CurrentUsageCount     int              `json:"currentUsageCount"`
	UsagePerUser          *int             `json:"usagePerUser,omitempty"`
	MinimumBookingAmount  *decimal.Decimal `json:"minimumBookingAmount,omitempty"`
	MinimumNights         *int             `json:"minimumNights,omitempty"`
	IsFirstBookingOnly    bool             `json:"isFirstBookingOnly"`
	IsNewUserOnly         bool             `json:"isNewUserOnly"`
	Scope                 CouponScope      `json:"scope"`
	SpecificHomestayID    *int64           `json:"specificHomestayId,omitempty"`
	ApplicableHomestayIDs []int64          `json:"applicableHomestayIds"`
	IsActive              bool             `json:"isActive"`
	IsPublic              bool             `json:"isPublic"`
	Priority              int              `json:"priority"`
	IsExpired             bool             `json:"isExpired"`
	IsAvailable           bool             `json:"isAvailable"`
	CreatedByUserID       int64            `json:"createdByUserId"`
	CreatedByName         string           `json:"createdByName"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}
