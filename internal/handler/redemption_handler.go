package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/internal/service"
)

// RedemptionServiceInterface defines the interface for validating and
// redeeming coupons.
type RedemptionServiceInterface interface {
	Validate(ctx context.Context, userID int64, req *model.ValidateCouponRequest) (model.CouponValidationResult, error)
	ValidateBest(ctx context.Context, userID int64, req *model.ValidateBestRequest) (*model.ValidateBestResponse, error)
	Redeem(ctx context.Context, actor model.Actor, req *model.RedeemCouponRequest) (*model.CouponUsage, model.CouponValidationResult, error)
}

// RedemptionHandler handles HTTP requests for coupon checks and redemptions.
type RedemptionHandler struct {
	service   RedemptionServiceInterface
	validator *validator.Validate
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(svc RedemptionServiceInterface, v *validator.Validate) *RedemptionHandler {
	return &RedemptionHandler{service: svc, validator: v}
}

// RedeemResponse is the body of a successful redemption.
type RedeemResponse struct {
	Usage  *model.CouponUsage           `json:"usage"`
	Result model.CouponValidationResult `json:"result"`
}

// ValidateCoupon handles POST /api/coupons/validate. The verdict is always
// returned with 200, including for unknown or ineligible coupons.
func (h *RedemptionHandler) ValidateCoupon(c *fiber.Ctx) error {
	actor, err := actorFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req model.ValidateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, formatValidationError(err))
	}

	result, err := h.service.Validate(c.Context(), actor.UserID, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return badRequest(c, err.Error())
		}
		return internalError(c, err, "failed to validate coupon")
	}

	log.Debug().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("coupon_code", req.CouponCode).
		Bool("valid", result.IsValid).
		Str("reason", string(result.Reason)).
		Msg("coupon validated")

	return c.JSON(result)
}

// ValidateBest handles POST /api/coupons/validate/best.
func (h *RedemptionHandler) ValidateBest(c *fiber.Ctx) error {
	actor, err := actorFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req model.ValidateBestRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, formatValidationError(err))
	}

	resp, err := h.service.ValidateBest(c.Context(), actor.UserID, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return badRequest(c, err.Error())
		}
		return internalError(c, err, "failed to pick best coupon")
	}
	return c.JSON(resp)
}

// RedeemCoupon handles POST /api/coupons/redeem.
// Returns 201 with the usage, 422 with the verdict when the coupon cannot be
// applied, and 409 when the booking already carries a coupon or the last
// use was taken concurrently.
func (h *RedemptionHandler) RedeemCoupon(c *fiber.Ctx) error {
	actor, err := actorFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if actor.UserID == 0 {
		return badRequest(c, "invalid request: "+HeaderUserID+" is required")
	}

	var req model.RedeemCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, formatValidationError(err))
	}
	if req.BookingID <= 0 {
		return badRequest(c, "invalid request: bookingId is required")
	}

	usage, result, err := h.service.Redeem(c.Context(), actor, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCouponNotRedeemable):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
		case errors.Is(err, service.ErrBookingAlreadyHasCoupon):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "booking already has a coupon"})
		case errors.Is(err, service.ErrUsageLimitReached):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "coupon usage limit reached"})
		case errors.Is(err, service.ErrInvalidRequest):
			return badRequest(c, err.Error())
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int64("user_id", actor.UserID).
			Int64("booking_id", req.BookingID).
			Str("coupon_code", req.CouponCode).
			Msg("failed to redeem coupon")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int64("user_id", actor.UserID).
		Int64("booking_id", req.BookingID).
		Str("coupon_code", req.CouponCode).
		Str("discount", usage.DiscountAmount.String()).
		Msg("coupon redeemed successfully")

	return c.Status(fiber.StatusCreated).JSON(RedeemResponse{Usage: usage, Result: result})
}
