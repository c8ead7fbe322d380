package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/homestay-coupon-service/internal/config"
	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

const (
	couponKeyPrefix     = "coupon:code:"
	generationKeyPrefix = "coupon:gen:"
)

// setIfCurrent writes KEYS[1] only while the generation in KEYS[2] still
// equals ARGV[1]. A missing generation counts as 0.
var setIfCurrent = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// NewRedisClient connects to a single Redis node and checks it answers.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("no Redis address provided")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// CouponCache stores coupons as JSON under coupon:code:<CODE>. Every
// invalidation bumps coupon:gen:<CODE>, and a fill taken against an older
// generation is dropped, so a reader that loaded the row before a write
// cannot put the old copy back.
type CouponCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCouponCache creates a CouponCache whose entries expire after ttl.
func NewCouponCache(client redis.Cmdable, ttl time.Duration) *CouponCache {
	return &CouponCache{client: client, ttl: ttl}
}

func couponKey(code string) string {
	return couponKeyPrefix + code
}

func generationKey(code string) string {
	return generationKeyPrefix + code
}

// Get returns the cached coupon, or nil, nil on a miss.
func (c *CouponCache) Get(ctx context.Context, code string) (*model.Coupon, error) {
	raw, err := c.client.Get(ctx, couponKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached coupon %s: %w", code, err)
	}

	var coupon model.Coupon
	if err := json.Unmarshal(raw, &coupon); err != nil {
		return nil, fmt.Errorf("decode cached coupon %s: %w", code, err)
	}
	return &coupon, nil
}

// Generation returns the invalidation counter for code. Read it before
// loading the coupon from the database and hand it to Set.
func (c *CouponCache) Generation(ctx context.Context, code string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(code)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cache generation %s: %w", code, err)
	}
	return gen, nil
}

// Set caches coupon under its code unless the code was invalidated after
// generation was read. A skipped write is not an error.
func (c *CouponCache) Set(ctx context.Context, coupon *model.Coupon, generation int64) error {
	raw, err := json.Marshal(coupon)
	if err != nil {
		return fmt.Errorf("encode coupon %s: %w", coupon.Code, err)
	}

	keys := []string{couponKey(coupon.Code), generationKey(coupon.Code)}
	if err := setIfCurrent.Run(ctx, c.client, keys, generation, raw, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("cache coupon %s: %w", coupon.Code, err)
	}
	return nil
}

// Invalidate drops the cached entry for code and starts a new generation.
// A missing key is not an error.
func (c *CouponCache) Invalidate(ctx context.Context, code string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(code))
		pipe.Del(ctx, couponKey(code))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate coupon %s: %w", code, err)
	}
	return nil
}
