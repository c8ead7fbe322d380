package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/homestay-coupon-service/internal/engine"
	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/pkg/database"
)

// CouponRepositoryInterface defines the interface for coupon data access.
type CouponRepositoryInterface interface {
	Insert(ctx context.Context, coupon *model.Coupon) error
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	GetByID(ctx context.Context, id int64) (*model.Coupon, error)
	GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error)
	Update(ctx context.Context, coupon *model.Coupon) error
	Deactivate(ctx context.Context, id int64) error
	ListPublic(ctx context.Context, today time.Time, homestayID int64) ([]model.Coupon, error)
	IncrementUsage(ctx context.Context, tx database.TxQuerier, id int64) error
}

// UsageRepositoryInterface defines the interface for coupon usage data access.
type UsageRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, usage *model.CouponUsage) error
	CountByUser(ctx context.Context, couponID, userID int64) (int, error)
	CountByUserTx(ctx context.Context, tx database.TxQuerier, couponID, userID int64) (int, error)
	ListByCoupon(ctx context.Context, couponID int64) ([]model.CouponUsage, error)
}

// UserRepositoryInterface reads the user and booking facts the gating checks need.
type UserRepositoryInterface interface {
	HasCompletedBooking(ctx context.Context, userID int64) (bool, error)
	RegisteredAt(ctx context.Context, userID int64) (*time.Time, error)
}

// CouponCache is a read-through cache of coupons keyed by code.
// Get returns nil, nil on a miss. Set must drop the write when Invalidate
// ran for the code after the given generation was read.
type CouponCache interface {
	Get(ctx context.Context, code string) (*model.Coupon, error)
	Generation(ctx context.Context, code string) (int64, error)
	Set(ctx context.Context, coupon *model.Coupon, generation int64) error
	Invalidate(ctx context.Context, code string) error
}

// EventPublisher announces redemptions to other services.
type EventPublisher interface {
	PublishCouponRedeemed(ctx context.Context, usage *model.CouponUsage) error
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	defaultNewUserWindow = 30 * 24 * time.Hour
	defaultMaxBestCodes  = 10
	bestConcurrency      = 4
)

// CouponService provides business logic for coupon operations.
type CouponService struct {
	pool       TxBeginner
	couponRepo CouponRepositoryInterface
	usageRepo  UsageRepositoryInterface
	userRepo   UserRepositoryInterface
	engine     *engine.Engine

	cache         CouponCache
	publisher     EventPublisher
	newUserWindow time.Duration
	maxBestCodes  int
	now           func() time.Time
}

// Option configures optional CouponService collaborators.
type Option func(*CouponService)

// WithCache enables the coupon cache.
func WithCache(c CouponCache) Option {
	return func(s *CouponService) { s.cache = c }
}

// WithPublisher enables redemption events.
func WithPublisher(p EventPublisher) Option {
	return func(s *CouponService) { s.publisher = p }
}

// WithNewUserWindow sets how long after registration a user counts as new.
func WithNewUserWindow(d time.Duration) Option {
	return func(s *CouponService) {
		if d > 0 {
			s.newUserWindow = d
		}
	}
}

// WithMaxBestCodes bounds the number of codes ValidateBest accepts.
func WithMaxBestCodes(n int) Option {
	return func(s *CouponService) {
		if n > 0 {
			s.maxBestCodes = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *CouponService) { s.now = now }
}

// NewCouponService creates a new CouponService with the given pool and repositories.
func NewCouponService(pool *pgxpool.Pool, couponRepo CouponRepositoryInterface, usageRepo UsageRepositoryInterface,
	userRepo UserRepositoryInterface, eng *engine.Engine, opts ...Option) *CouponService {
	return NewCouponServiceWithTxBeginner(pool, couponRepo, usageRepo, userRepo, eng, opts...)
}

// NewCouponServiceWithTxBeginner creates a CouponService with a custom TxBeginner.
// Primarily used for testing.
func NewCouponServiceWithTxBeginner(pool TxBeginner, couponRepo CouponRepositoryInterface, usageRepo UsageRepositoryInterface,
	userRepo UserRepositoryInterface, eng *engine.Engine, opts ...Option) *CouponService {
	s := &CouponService{
		pool:          pool,
		couponRepo:    couponRepo,
		usageRepo:     usageRepo,
		userRepo:      userRepo,
		engine:        eng,
		newUserWindow: defaultNewUserWindow,
		maxBestCodes:  defaultMaxBestCodes,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new coupon with no recorded usage.
// Returns ErrCouponExists if the code is taken and ErrInvalidCoupon if the
// request breaks a coupon invariant.
func (s *CouponService) Create(ctx context.Context, creator model.Actor, req *model.CreateCouponRequest) (*model.CouponDTO, error) {
	// Defense-in-depth: check for nil pointer even though handler validates
	if req == nil {
		return nil, ErrInvalidRequest
	}

	kind, err := resolveKind(req.CouponType, req.DiscountKind)
	if err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	now := s.now()
	coupon := &model.Coupon{
		Code:        req.CouponCode,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.CouponType,
		Discount: model.DiscountRule{
			Kind:  kind,
			Value: req.DiscountValue,
			Cap:   req.MaxDiscountAmount,
		},
		StartDate:             req.StartDate.Time,
		EndDate:               req.EndDate.Time,
		TotalUsageLimit:       req.TotalUsageLimit,
		UsagePerUser:          req.UsagePerUser,
		MinimumBookingAmount:  req.MinimumBookingAmount,
		MinimumNights:         req.MinimumNights,
		IsFirstBookingOnly:    req.IsFirstBookingOnly,
		IsNewUserOnly:         req.IsNewUserOnly,
		Scope:                 req.Scope,
		SpecificHomestayID:    req.SpecificHomestayID,
		ApplicableHomestayIDs: req.ApplicableHomestayIDs,
		IsActive:              isActive,
		IsPublic:              req.IsPublic,
		Priority:              req.Priority,
		CreatedByUserID:       creator.UserID,
		CreatedByName:         creator.UserName,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := coupon.Check(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, err.Error())
	}

	if err := s.couponRepo.Insert(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon.ToDTO(s.engine.Today()), nil
}

// Update applies a partial update. The code and the audit fields never change.
func (s *CouponService) Update(ctx context.Context, id int64, req *model.UpdateCouponRequest) (*model.CouponDTO, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	coupon, err := s.couponRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	if err := applyUpdate(coupon, req); err != nil {
		return nil, err
	}
	if err := coupon.Check(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, err.Error())
	}
	coupon.UpdatedAt = s.now()

	if err := s.couponRepo.Update(ctx, coupon); err != nil {
		return nil, err
	}
	s.invalidate(ctx, coupon.Code)
	return coupon.ToDTO(s.engine.Today()), nil
}

// Deactivate soft-disables a coupon. Usage history is kept.
func (s *CouponService) Deactivate(ctx context.Context, id int64) error {
	coupon, err := s.couponRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return ErrCouponNotFound
	}

	if err := s.couponRepo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, coupon.Code)
	return nil
}

// GetByID retrieves a coupon by id.
// Returns ErrCouponNotFound if the coupon doesn't exist.
func (s *CouponService) GetByID(ctx context.Context, id int64) (*model.CouponDTO, error) {
	coupon, err := s.couponRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	return coupon.ToDTO(s.engine.Today()), nil
}

// GetByCode retrieves a coupon by its exact code.
// Returns ErrCouponNotFound if the coupon doesn't exist.
func (s *CouponService) GetByCode(ctx context.Context, code string) (*model.CouponDTO, error) {
	coupon, err := s.loadCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	return coupon.ToDTO(s.engine.Today()), nil
}

// ListPublic returns active public coupons that have not expired, highest
// priority first. A homestayID of 0 skips the scope filter.
func (s *CouponService) ListPublic(ctx context.Context, homestayID int64) ([]model.CouponDTO, error) {
	today := s.engine.Today()
	coupons, err := s.couponRepo.ListPublic(ctx, today.Time, homestayID)
	if err != nil {
		return nil, fmt.Errorf("list public coupons: %w", err)
	}

	dtos := make([]model.CouponDTO, 0, len(coupons))
	for i := range coupons {
		dtos = append(dtos, *coupons[i].ToDTO(today))
	}
	return dtos, nil
}

// ListUsages returns the redemptions of a coupon, oldest first.
func (s *CouponService) ListUsages(ctx context.Context, couponID int64) ([]model.CouponUsage, error) {
	coupon, err := s.couponRepo.GetByID(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	usages, err := s.usageRepo.ListByCoupon(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	return usages, nil
}

// resolveKind picks the discount kind for a coupon type. Percentage and
// FixedAmount imply their kind; the label types must name one.
func resolveKind(t model.CouponType, requested model.DiscountKind) (model.DiscountKind, error) {
	implied, ok := model.KindFor(t)
	switch {
	case ok && requested != "" && requested != implied:
		return "", fmt.Errorf("%w: discountKind %s does not match couponType %s", ErrInvalidCoupon, requested, t)
	case ok:
		return implied, nil
	case requested == "":
		return "", fmt.Errorf("%w: discountKind is required for couponType %s", ErrInvalidCoupon, t)
	}
	return requested, nil
}

func applyUpdate(c *model.Coupon, req *model.UpdateCouponRequest) error {
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}

	if req.CouponType != nil || req.DiscountKind != nil {
		t := c.Type
		if req.CouponType != nil {
			t = *req.CouponType
		}
		var requested model.DiscountKind
		if req.DiscountKind != nil {
			requested = *req.DiscountKind
		} else if _, ok := model.KindFor(t); !ok {
			requested = c.Discount.Kind
		}
		kind, err := resolveKind(t, requested)
		if err != nil {
			return err
		}
		c.Type = t
		if kind != c.Discount.Kind && kind == model.DiscountKindFixedAmount && req.MaxDiscountAmount == nil {
			c.Discount.Cap = nil
		}
		c.Discount.Kind = kind
	}
	if req.DiscountValue != nil {
		c.Discount.Value = *req.DiscountValue
	}
	if req.MaxDiscountAmount != nil {
		c.Discount.Cap = req.MaxDiscountAmount
	}

	if req.StartDate != nil {
		c.StartDate = req.StartDate.Time
	}
	if req.EndDate != nil {
		c.EndDate = req.EndDate.Time
	}

	if req.TotalUsageLimit != nil {
		c.TotalUsageLimit = req.TotalUsageLimit
	}
	if req.UsagePerUser != nil {
		c.UsagePerUser = req.UsagePerUser
	}
	if req.MinimumBookingAmount != nil {
		c.MinimumBookingAmount = req.MinimumBookingAmount
	}
	if req.MinimumNights != nil {
		c.MinimumNights = req.MinimumNights
	}
	if req.IsFirstBookingOnly != nil {
		c.IsFirstBookingOnly = *req.IsFirstBookingOnly
	}
	if req.IsNewUserOnly != nil {
		c.IsNewUserOnly = *req.IsNewUserOnly
	}

	if req.Scope != nil {
		c.Scope = *req.Scope
		// Drop targets left over from the previous scope unless resent.
		if req.SpecificHomestayID == nil && c.Scope != model.ScopeSpecificHomestay {
			c.SpecificHomestayID = nil
		}
		if req.ApplicableHomestayIDs == nil && c.Scope != model.ScopeMultipleHomestays {
			c.ApplicableHomestayIDs = nil
		}
	}
	if req.SpecificHomestayID != nil {
		c.SpecificHomestayID = req.SpecificHomestayID
	}
	if req.ApplicableHomestayIDs != nil {
		c.ApplicableHomestayIDs = req.ApplicableHomestayIDs
	}

	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if req.IsPublic != nil {
		c.IsPublic = *req.IsPublic
	}
	if req.Priority != nil {
		c.Priority = *req.Priority
	}
	return nil
}
