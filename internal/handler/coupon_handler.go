package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/internal/service"
)

// Identity headers set by the gateway in front of the service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// CouponServiceInterface defines the interface for coupon management.
type CouponServiceInterface interface {
	Create(ctx context.Context, creator model.Actor, req *model.CreateCouponRequest) (*model.CouponDTO, error)
	Update(ctx context.Context, id int64, req *model.UpdateCouponRequest) (*model.CouponDTO, error)
	Deactivate(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.CouponDTO, error)
	GetByCode(ctx context.Context, code string) (*model.CouponDTO, error)
	ListPublic(ctx context.Context, homestayID int64) ([]model.CouponDTO, error)
	ListUsages(ctx context.Context, couponID int64) ([]model.CouponUsage, error)
}

// CouponHandler handles HTTP requests for coupon management.
type CouponHandler struct {
	service   CouponServiceInterface
	validator *validator.Validate
}

// NewCouponHandler creates a new CouponHandler with the given service and validator.
func NewCouponHandler(svc CouponServiceInterface, v *validator.Validate) *CouponHandler {
	return &CouponHandler{service: svc, validator: v}
}

// jsonFieldNames maps struct field names to their wire names.
var jsonFieldNames = map[string]string{
	"CouponCode":            "couponCode",
	"CouponCodes":           "couponCodes",
	"Name":                  "name",
	"Description":           "description",
	"CouponType":            "couponType",
	"DiscountKind":          "discountKind",
	"DiscountValue":         "discountValue",
	"MaxDiscountAmount":     "maxDiscountAmount",
	"StartDate":             "startDate",
	"EndDate":               "endDate",
	"TotalUsageLimit":       "totalUsageLimit",
	"UsagePerUser":          "usagePerUser",
	"MinimumBookingAmount":  "minimumBookingAmount",
	"MinimumNights":         "minimumNights",
	"Scope":                 "scope",
	"SpecificHomestayID":    "specificHomestayId",
	"ApplicableHomestayIDs": "applicableHomestayIds",
	"Priority":              "priority",
	"HomestayID":            "homestayId",
	"BookingAmount":         "bookingAmount",
	"NumberOfNights":        "numberOfNights",
	"BookingID":             "bookingId",
	"BookingCode":           "bookingCode",
}

// formatValidationError turns the first validator error into a client message.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}

	fe := ve[0]
	field, ok := jsonFieldNames[fe.StructField()]
	if !ok {
		field = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return "invalid request: " + field + " is required"
	case "notblank":
		return "invalid request: " + field + " cannot be whitespace only"
	case "couponcode":
		return "invalid request: " + field + " must be 3-50 characters of A-Z, 0-9, '-' or '_'"
	case "oneof":
		return "invalid request: " + field + " must be one of " + fe.Param()
	case "max":
		return "invalid request: " + field + " exceeds maximum of " + fe.Param()
	case "min":
		return "invalid request: " + field + " is below minimum of " + fe.Param()
	case "gt":
		return "invalid request: " + field + " must be greater than " + fe.Param()
	case "gte":
		return "invalid request: " + field + " must be at least " + fe.Param()
	case "lte":
		return "invalid request: " + field + " must be at most " + fe.Param()
	case "requiredforscope":
		return "invalid request: " + field + " is required for scope " + fe.Param()
	case "gtefield":
		return "invalid request: " + field + " must not be before startDate"
	case "moneyplaces":
		return "invalid request: " + field + " must have at most " + fe.Param() + " decimal places"
	default:
		return "invalid request: " + field + " is invalid"
	}
}

// actorFromHeaders reads the caller identity. A missing X-User-ID is the
// anonymous caller (UserID 0).
func actorFromHeaders(c *fiber.Ctx) (model.Actor, error) {
	actor := model.Actor{UserName: strings.TrimSpace(c.Get(HeaderUserName))}

	raw := strings.TrimSpace(c.Get(HeaderUserID))
	if raw == "" {
		return actor, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return actor, errors.New("invalid request: X-User-ID must be a positive integer")
	}
	actor.UserID = id
	return actor, nil
}

func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func internalError(c *fiber.Ctx, err error, msg string) error {
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// writeError maps the management sentinels onto status codes.
func writeError(c *fiber.Ctx, err error, msg string) error {
	switch {
	case errors.Is(err, service.ErrCouponNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "coupon not found"})
	case errors.Is(err, service.ErrCouponExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "coupon already exists"})
	case errors.Is(err, service.ErrInvalidCoupon), errors.Is(err, service.ErrInvalidRequest):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err, msg)
	}
}

// CreateCoupon handles POST /api/coupons.
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	actor, err := actorFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req model.CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, formatValidationError(err))
	}

	coupon, err := h.service.Create(c.Context(), actor, &req)
	if err != nil {
		return writeError(c, err, "failed to create coupon")
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("coupon_code", coupon.CouponCode).
		Int64("coupon_id", coupon.ID).
		Int64("created_by", actor.UserID).
		Msg("coupon created")

	return c.Status(fiber.StatusCreated).JSON(coupon)
}

// ListCoupons handles GET /api/coupons. An optional homestayId query narrows
// the list to coupons usable at that homestay.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	var homestayID int64
	if raw := c.Query("homestayId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return badRequest(c, "invalid request: homestayId must be a positive integer")
		}
		homestayID = id
	}

	coupons, err := h.service.ListPublic(c.Context(), homestayID)
	if err != nil {
		return internalError(c, err, "failed to list coupons")
	}
	return c.JSON(coupons)
}

// GetCoupon handles GET /api/coupons/:id.
func (h *CouponHandler) GetCoupon(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a positive integer")
	}

	coupon, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return writeError(c, err, "failed to get coupon")
	}
	return c.JSON(coupon)
}

// GetCouponByCode handles GET /api/coupons/code/:code.
func (h *CouponHandler) GetCouponByCode(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Params("code"))
	if code == "" {
		return badRequest(c, "invalid request: couponCode is required")
	}

	coupon, err := h.service.GetByCode(c.Context(), code)
	if err != nil {
		return writeError(c, err, "failed to get coupon")
	}
	return c.JSON(coupon)
}

// UpdateCoupon handles PATCH /api/coupons/:id.
func (h *CouponHandler) UpdateCoupon(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a positive integer")
	}

	var req model.UpdateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, formatValidationError(err))
	}

	coupon, err := h.service.Update(c.Context(), id, &req)
	if err != nil {
		return writeError(c, err, "failed to update coupon")
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Int64("coupon_id", id).
		Msg("coupon updated")

	return c.JSON(coupon)
}

// DeleteCoupon handles DELETE /api/coupons/:id. Coupons are deactivated,
// never removed, so their usage history stays intact.
func (h *CouponHandler) DeleteCoupon(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a positive integer")
	}

	if err := h.service.Deactivate(c.Context(), id); err != nil {
		return writeError(c, err, "failed to deactivate coupon")
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Int64("coupon_id", id).
		Msg("coupon deactivated")

	return c.SendStatus(fiber.StatusNoContent)
}

// ListUsages handles GET /api/coupons/:id/usages.
func (h *CouponHandler) ListUsages(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a positive integer")
	}

	usages, err := h.service.ListUsages(c.Context(), id)
	if err != nil {
		return writeError(c, err, "failed to list coupon usages")
	}
	return c.JSON(usages)
}
