package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/homestay-coupon-service/internal/cache"
	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/pkg/database"
)

// couponRow stands in for the coupons table row of a single coupon.
type couponRow struct {
	mu     sync.Mutex
	coupon *model.Coupon
}

func (r *couponRow) snapshot() *model.Coupon {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *r.coupon
	return &c
}

func newRedisCache(t *testing.T) *cache.CouponCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewCouponCache(client, 5*time.Minute)
}

func TestCouponService_Validate_RedeemDuringCacheFill(t *testing.T) {
	stored := storedCoupon()
	stored.TotalUsageLimit = intPtr(1)
	row := &couponRow{coupon: stored}

	var svc *CouponService
	reads := 0
	couponRepo := &mockCouponRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.Coupon, error) {
			reads++
			loaded := row.snapshot()
			if reads == 1 {
				// The last slot is redeemed after this reader loaded the row
				// but before it fills the cache.
				_, _, err := svc.Redeem(ctx, model.Actor{UserID: 11}, redeemRequest("SUMMER10", 1001))
				require.NoError(t, err)
			}
			return loaded, nil
		},
		getByCodeForUpdateFn: func(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error) {
			return row.snapshot(), nil
		},
		incrementUsageFn: func(ctx context.Context, q database.TxQuerier, id int64) error {
			row.mu.Lock()
			defer row.mu.Unlock()
			row.coupon.CurrentUsageCount++
			return nil
		},
	}
	svc = newService(couponRepo, nil, WithCache(newRedisCache(t)))

	first, err := svc.Validate(context.Background(), 0, validateRequest("SUMMER10", "200"))
	require.NoError(t, err)
	assert.True(t, first.IsValid, "the first reader answers from its own snapshot")

	second, err := svc.Validate(context.Background(), 0, validateRequest("SUMMER10", "200"))
	require.NoError(t, err)
	assert.False(t, second.IsValid)
	assert.Equal(t, model.ReasonUsageLimitReached, second.Reason)
	assert.Equal(t, 2, reads, "the stale snapshot must not have been cached")
}

func TestCouponService_GetByCode_DeactivateDuringCacheFill(t *testing.T) {
	row := &couponRow{coupon: storedCoupon()}

	var svc *CouponService
	reads := 0
	couponRepo := &mockCouponRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.Coupon, error) {
			reads++
			loaded := row.snapshot()
			if reads == 1 {
				require.NoError(t, svc.Deactivate(ctx, loaded.ID))
			}
			return loaded, nil
		},
		getByIDFn: func(ctx context.Context, id int64) (*model.Coupon, error) {
			return row.snapshot(), nil
		},
		deactivateFn: func(ctx context.Context, id int64) error {
			row.mu.Lock()
			defer row.mu.Unlock()
			row.coupon.IsActive = false
			return nil
		},
	}
	mc := newMockCache()
	svc = newService(couponRepo, nil, WithCache(mc))

	_, err := svc.GetByCode(context.Background(), "SUMMER10")
	require.NoError(t, err)
	assert.NotContains(t, mc.items, "SUMMER10")

	dto, err := svc.GetByCode(context.Background(), "SUMMER10")
	require.NoError(t, err)
	assert.False(t, dto.IsActive)
	assert.False(t, dto.IsAvailable)
}
