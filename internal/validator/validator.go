package validator

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// Register custom "notblank" validator - rejects whitespace-only strings
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// "couponcode" enforces the stored code format: uppercase, digits, '-' and '_'
	_ = v.RegisterValidation("couponcode", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return model.ValidCouponCode(str)
	})

	// Money fields are compared as numbers so gt/gte/lte work on them
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	// A zero Date is reported as missing so "required" catches it
	v.RegisterCustomTypeFunc(dateValue, model.Date{})

	v.RegisterStructValidation(createCouponStructLevel, model.CreateCouponRequest{})
	v.RegisterStructValidation(updateCouponStructLevel, model.UpdateCouponRequest{})
	v.RegisterStructValidation(bookingContextStructLevel, model.BookingContext{})

	return v
}

// createCouponStructLevel checks the fields that only make sense together:
// the homestay targets must match the scope and the window must not be
// reversed.
func createCouponStructLevel(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(model.CreateCouponRequest)
	if !ok {
		return
	}

	switch req.Scope {
	case model.ScopeSpecificHomestay:
		if req.SpecificHomestayID == nil {
			sl.ReportError(req.SpecificHomestayID, "SpecificHomestayID", "SpecificHomestayID", "requiredforscope", string(req.Scope))
		}
	case model.ScopeMultipleHomestays:
		if len(req.ApplicableHomestayIDs) == 0 {
			sl.ReportError(req.ApplicableHomestayIDs, "ApplicableHomestayIDs", "ApplicableHomestayIDs", "requiredforscope", string(req.Scope))
		}
	}

	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate.Time) {
		sl.ReportError(req.EndDate, "EndDate", "EndDate", "gtefield", "StartDate")
	}

	reportMoneyPlaces(sl, &req.DiscountValue, "DiscountValue")
	reportMoneyPlaces(sl, req.MaxDiscountAmount, "MaxDiscountAmount")
	reportMoneyPlaces(sl, req.MinimumBookingAmount, "MinimumBookingAmount")
}

func updateCouponStructLevel(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(model.UpdateCouponRequest)
	if !ok {
		return
	}
	reportMoneyPlaces(sl, req.DiscountValue, "DiscountValue")
	reportMoneyPlaces(sl, req.MaxDiscountAmount, "MaxDiscountAmount")
	reportMoneyPlaces(sl, req.MinimumBookingAmount, "MinimumBookingAmount")
}

func bookingContextStructLevel(sl validator.StructLevel) {
	bc, ok := sl.Current().Interface().(model.BookingContext)
	if !ok {
		return
	}
	reportMoneyPlaces(sl, &bc.BookingAmount, "BookingAmount")
}

// reportMoneyPlaces flags amounts the money columns would round. The
// decimal type func hands field-level tags a float64, so the exact digits
// are only visible here.
func reportMoneyPlaces(sl validator.StructLevel, d *decimal.Decimal, field string) {
	if d == nil || model.FitsMoneyPlaces(*d) {
		return
	}
	sl.ReportError(*d, field, field, "moneyplaces", strconv.Itoa(model.MoneyPlaces))
}

func decimalValue(field reflect.Value) interface{} {
	d, ok := field.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	f, _ := d.Float64()
	return f
}

func dateValue(field reflect.Value) interface{} {
	d, ok := field.Interface().(model.Date)
	if !ok || d.IsZero() {
		return nil
	}
	return d.String()
}
