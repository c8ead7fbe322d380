package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/homestay-coupon-service/internal/engine"
	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

// Validate checks one coupon code against a prospective booking. It never
// writes. An ineligible coupon is a normal result, not an error; errors are
// reserved for storage failures.
func (s *CouponService) Validate(ctx context.Context, userID int64, req *model.ValidateCouponRequest) (model.CouponValidationResult, error) {
	if req == nil {
		return model.CouponValidationResult{}, ErrInvalidRequest
	}

	coupon, err := s.loadCoupon(ctx, req.CouponCode)
	if err != nil {
		return model.CouponValidationResult{}, err
	}
	if coupon == nil {
		return s.engine.Validate(nil, *req, model.UserContext{}), nil
	}

	user, err := s.userContext(ctx, userID)
	if err != nil {
		return model.CouponValidationResult{}, err
	}
	if userID > 0 {
		count, err := s.usageRepo.CountByUser(ctx, coupon.ID, userID)
		if err != nil {
			return model.CouponValidationResult{}, fmt.Errorf("count user usages: %w", err)
		}
		user.UsageCount = &count
	}

	return s.engine.Validate(coupon, *req, user), nil
}

// ValidateBest validates several codes against the same booking and picks
// the one to redeem. Duplicate codes are checked once.
func (s *CouponService) ValidateBest(ctx context.Context, userID int64, req *model.ValidateBestRequest) (*model.ValidateBestResponse, error) {
	if req == nil || len(req.CouponCodes) == 0 {
		return nil, ErrInvalidRequest
	}

	codes := make([]string, 0, len(req.CouponCodes))
	seen := make(map[string]struct{}, len(req.CouponCodes))
	for _, code := range req.CouponCodes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(codes) > s.maxBestCodes {
		return nil, fmt.Errorf("%w: at most %d coupon codes per request", ErrInvalidRequest, s.maxBestCodes)
	}

	results := make([]model.CouponValidationResult, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bestConcurrency)
	for i, code := range codes {
		g.Go(func() error {
			r, err := s.Validate(gctx, userID, &model.ValidateCouponRequest{
				CouponCode:     code,
				BookingContext: req.BookingContext,
			})
			if err != nil {
				return fmt.Errorf("validate %s: %w", code, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &model.ValidateBestResponse{Results: results}
	if best := engine.Best(results); best != nil {
		chosen := *best
		resp.Best = &chosen
	}
	return resp, nil
}

// Redeem applies a coupon to a confirmed booking. The coupon row is locked
// for the whole transaction, so the usage checks see every earlier
// redemption. The returned result explains a rejection; it is set whenever
// the error is ErrCouponNotRedeemable.
// Returns:
//   - ErrInvalidRequest if the booking or the user is missing
//   - ErrCouponNotRedeemable if any eligibility check fails
//   - ErrBookingAlreadyHasCoupon if the booking already carries a coupon
//   - ErrUsageLimitReached if the global cap filled up at write time
func (s *CouponService) Redeem(ctx context.Context, actor model.Actor, req *model.RedeemCouponRequest) (*model.CouponUsage, model.CouponValidationResult, error) {
	if req == nil || req.BookingID <= 0 || actor.UserID <= 0 {
		return nil, model.CouponValidationResult{}, ErrInvalidRequest
	}
	if !model.FitsMoneyPlaces(req.BookingAmount) {
		return nil, model.CouponValidationResult{}, fmt.Errorf("%w: bookingAmount must have at most %d decimal places", ErrInvalidRequest, model.MoneyPlaces)
	}

	user, err := s.userContext(ctx, actor.UserID)
	if err != nil {
		return nil, model.CouponValidationResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, model.CouponValidationResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	// 1. Lock the coupon row (SELECT FOR UPDATE)
	coupon, err := s.couponRepo.GetByCodeForUpdate(ctx, tx, req.CouponCode)
	if err != nil && !errors.Is(err, ErrCouponNotFound) {
		return nil, model.CouponValidationResult{}, fmt.Errorf("get coupon for update: %w", err)
	}

	// 2. Re-run the checks against the locked row
	if coupon != nil {
		count, err := s.usageRepo.CountByUserTx(ctx, tx, coupon.ID, actor.UserID)
		if err != nil {
			return nil, model.CouponValidationResult{}, fmt.Errorf("count user usages: %w", err)
		}
		user.UsageCount = &count
	}
	result := s.engine.Validate(coupon, req.ValidateCouponRequest, user)
	if !result.IsValid {
		return nil, result, ErrCouponNotRedeemable
	}

	// 3. Insert usage (UNIQUE booking_id catches a second coupon)
	usage := &model.CouponUsage{
		CouponID:       coupon.ID,
		CouponCode:     coupon.Code,
		UserID:         actor.UserID,
		UserName:       actor.UserName,
		BookingID:      req.BookingID,
		BookingCode:    req.BookingCode,
		DiscountAmount: result.DiscountAmount,
	}
	if err := s.usageRepo.Insert(ctx, tx, usage); err != nil {
		if errors.Is(err, ErrBookingAlreadyHasCoupon) {
			return nil, result, ErrBookingAlreadyHasCoupon
		}
		return nil, result, fmt.Errorf("insert usage: %w", err)
	}

	// 4. Conditional increment
	if err := s.couponRepo.IncrementUsage(ctx, tx, coupon.ID); err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			return nil, result, ErrUsageLimitReached
		}
		return nil, result, fmt.Errorf("increment usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, result, fmt.Errorf("commit tx: %w", err)
	}

	coupon.CurrentUsageCount++
	result.Coupon = coupon.ToDTO(s.engine.Today())
	s.invalidate(ctx, coupon.Code)
	s.publishRedeemed(ctx, usage)

	return usage, result, nil
}

// loadCoupon reads through the cache. Cache failures fall back to the
// database. Returns nil, nil when the code is unknown.
func (s *CouponService) loadCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	var generation int64
	fill := false
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, code)
		if err != nil {
			log.Warn().Err(err).Str("coupon_code", code).Msg("coupon cache read failed")
		} else if cached != nil {
			return cached, nil
		}

		// Must be read before the row so a write committed in between voids the fill.
		if generation, err = s.cache.Generation(ctx, code); err != nil {
			log.Warn().Err(err).Str("coupon_code", code).Msg("coupon cache generation read failed")
		} else {
			fill = true
		}
	}

	coupon, err := s.couponRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, nil
	}

	if fill {
		if err := s.cache.Set(ctx, coupon, generation); err != nil {
			log.Warn().Err(err).Str("coupon_code", code).Msg("coupon cache write failed")
		}
	}
	return coupon, nil
}

// userContext collects the booking history facts for userID. Anonymous
// callers get the zero context.
func (s *CouponService) userContext(ctx context.Context, userID int64) (model.UserContext, error) {
	uc := model.UserContext{UserID: userID}
	if userID <= 0 {
		return uc, nil
	}

	completed, err := s.userRepo.HasCompletedBooking(ctx, userID)
	if err != nil {
		return uc, fmt.Errorf("check completed bookings: %w", err)
	}
	uc.HasCompletedBooking = completed

	registeredAt, err := s.userRepo.RegisteredAt(ctx, userID)
	if err != nil {
		return uc, fmt.Errorf("get registration time: %w", err)
	}
	if registeredAt != nil {
		uc.IsNewUser = s.now().Sub(*registeredAt) <= s.newUserWindow
	}
	return uc, nil
}

func (s *CouponService) invalidate(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		log.Warn().Err(err).Str("coupon_code", code).Msg("coupon cache invalidation failed")
	}
}

func (s *CouponService) publishRedeemed(ctx context.Context, usage *model.CouponUsage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCouponRedeemed(ctx, usage); err != nil {
		log.Error().
			Err(err).
			Str("coupon_code", usage.CouponCode).
			Int64("booking_id", usage.BookingID).
			Msg("failed to publish coupon redeemed event")
	}
}
