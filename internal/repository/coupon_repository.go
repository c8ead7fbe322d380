package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/internal/service"
	"github.com/fairyhunter13/homestay-coupon-service/pkg/database"
)

const couponColumns = `id, coupon_code, name, description, coupon_type, discount_kind, discount_value,
	max_discount_amount, start_date, end_date, total_usage_limit, current_usage_count, usage_per_user,
	minimum_booking_amount, minimum_nights, is_first_booking_only, is_new_user_only, scope,
	specific_homestay_id, applicable_homestay_ids, is_active, is_public, priority,
	created_by_user_id, created_by_name, created_at, updated_at`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CouponRepository provides data access for coupons using pgx.
type CouponRepository struct {
	pool database.TxQuerier
}

// NewCouponRepository creates a new CouponRepository with the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// NewCouponRepositoryWithPool creates a new CouponRepository with a custom pool interface.
// This is primarily used for testing.
func NewCouponRepositoryWithPool(pool database.TxQuerier) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Insert inserts a new coupon and sets its ID.
// Returns service.ErrCouponExists if the code is already taken.
func (r *CouponRepository) Insert(ctx context.Context, c *model.Coupon) error {
	query := `INSERT INTO coupons (
		coupon_code, name, description, coupon_type, discount_kind, discount_value,
		max_discount_amount, start_date, end_date, total_usage_limit, current_usage_count, usage_per_user,
		minimum_booking_amount, minimum_nights, is_first_booking_only, is_new_user_only, scope,
		specific_homestay_id, applicable_homestay_ids, is_active, is_public, priority,
		created_by_user_id, created_by_name, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		$18, $19, $20, $21, $22, $23, $24, $25, $26)
	RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		c.Code, c.Name, c.Description, string(c.Type), string(c.Discount.Kind), c.Discount.Value,
		c.Discount.Cap, c.StartDate, c.EndDate, c.TotalUsageLimit, c.CurrentUsageCount, c.UsagePerUser,
		c.MinimumBookingAmount, c.MinimumNights, c.IsFirstBookingOnly, c.IsNewUserOnly, string(c.Scope),
		c.SpecificHomestayID, homestayIDs(c.ApplicableHomestayIDs), c.IsActive, c.IsPublic, c.Priority,
		c.CreatedByUserID, c.CreatedByName, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintCouponCode) {
			return service.ErrCouponExists
		}
		if constraint, ok := database.CheckConstraint(err); ok {
			return checkViolation(constraint)
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// GetByCode retrieves a coupon by its exact code.
// Returns nil, nil if the coupon is not found (service layer handles this).
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE coupon_code = $1`

	coupon, err := scanCoupon(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get coupon by code %s: %w", code, err)
	}
	return coupon, nil
}

// GetByID retrieves a coupon by id.
// Returns nil, nil if the coupon is not found.
func (r *CouponRepository) GetByID(ctx context.Context, id int64) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	coupon, err := scanCoupon(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon by id %d: %w", id, err)
	}
	return coupon, nil
}

// GetByCodeForUpdate retrieves a coupon with a row lock (SELECT FOR UPDATE).
// This locks the row until the transaction completes.
// Returns service.ErrCouponNotFound if the coupon doesn't exist.
func (r *CouponRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE coupon_code = $1 FOR UPDATE`

	coupon, err := scanCoupon(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon for update %s: %w", code, err)
	}
	return coupon, nil
}

// Update writes every mutable column. The code, the usage counter and the
// audit columns are left alone.
// Returns service.ErrCouponNotFound if no row matched.
func (r *CouponRepository) Update(ctx context.Context, c *model.Coupon) error {
	query := `UPDATE coupons SET
		name = $2, description = $3, coupon_type = $4, discount_kind = $5, discount_value = $6,
		max_discount_amount = $7, start_date = $8, end_date = $9, total_usage_limit = $10,
		usage_per_user = $11, minimum_booking_amount = $12, minimum_nights = $13,
		is_first_booking_only = $14, is_new_user_only = $15, scope = $16, specific_homestay_id = $17,
		applicable_homestay_ids = $18, is_active = $19, is_public = $20, priority = $21, updated_at = $22
	WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.Description, string(c.Type), string(c.Discount.Kind), c.Discount.Value,
		c.Discount.Cap, c.StartDate, c.EndDate, c.TotalUsageLimit,
		c.UsagePerUser, c.MinimumBookingAmount, c.MinimumNights,
		c.IsFirstBookingOnly, c.IsNewUserOnly, string(c.Scope), c.SpecificHomestayID,
		homestayIDs(c.ApplicableHomestayIDs), c.IsActive, c.IsPublic, c.Priority, c.UpdatedAt,
	)
	if err != nil {
		// The counter may have moved past a lowered limit since the row was read.
		if constraint, ok := database.CheckConstraint(err); ok {
			return checkViolation(constraint)
		}
		return fmt.Errorf("update coupon %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrCouponNotFound
	}
	return nil
}

func checkViolation(constraint string) error {
	if constraint == database.ConstraintUsageWithinLimit {
		return fmt.Errorf("%w: totalUsageLimit must not be below currentUsageCount", service.ErrInvalidCoupon)
	}
	return fmt.Errorf("%w: violates %s", service.ErrInvalidCoupon, constraint)
}

// Deactivate clears is_active.
// Returns service.ErrCouponNotFound if no row matched.
func (r *CouponRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE coupons SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate coupon %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrCouponNotFound
	}
	return nil
}

// ListPublic returns active public coupons whose end date is not before
// today, highest priority first. A homestayID of 0 lists coupons for every
// homestay.
func (r *CouponRepository) ListPublic(ctx context.Context, today time.Time, homestayID int64) ([]model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons
	WHERE is_active AND is_public AND end_date >= $1
	  AND ($2::bigint = 0 OR scope = 'AllHomestays' OR specific_homestay_id = $2 OR $2 = ANY(applicable_homestay_ids))
	ORDER BY priority DESC, id`

	rows, err := r.pool.Query(ctx, query, today, homestayID)
	if err != nil {
		return nil, fmt.Errorf("list public coupons: %w", err)
	}
	defer rows.Close()

	coupons := []model.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupon rows: %w", err)
	}
	return coupons, nil
}

// IncrementUsage bumps current_usage_count only while it is below the
// global limit. Must be called within a transaction after locking the row.
// Returns service.ErrUsageLimitReached if the limit was already hit.
func (r *CouponRepository) IncrementUsage(ctx context.Context, tx database.TxQuerier, id int64) error {
	query := `UPDATE coupons
	SET current_usage_count = current_usage_count + 1, updated_at = NOW()
	WHERE id = $1 AND (total_usage_limit IS NULL OR current_usage_count < total_usage_limit)`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment usage for coupon %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrUsageLimitReached
	}
	return nil
}

func scanCoupon(row rowScanner) (*model.Coupon, error) {
	var (
		c                       model.Coupon
		couponType, kind, scope string
		maxDiscount, minAmount  decimal.NullDecimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &couponType, &kind, &c.Discount.Value,
		&maxDiscount, &c.StartDate, &c.EndDate, &c.TotalUsageLimit, &c.CurrentUsageCount, &c.UsagePerUser,
		&minAmount, &c.MinimumNights, &c.IsFirstBookingOnly, &c.IsNewUserOnly, &scope,
		&c.SpecificHomestayID, &c.ApplicableHomestayIDs, &c.IsActive, &c.IsPublic, &c.Priority,
		&c.CreatedByUserID, &c.CreatedByName, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = model.CouponType(couponType)
	c.Discount.Kind = model.DiscountKind(kind)
	c.Scope = model.CouponScope(scope)
	if maxDiscount.Valid {
		c.Discount.Cap = &maxDiscount.Decimal
	}
	if minAmount.Valid {
		c.MinimumBookingAmount = &minAmount.Decimal
	}
	if len(c.ApplicableHomestayIDs) == 0 {
		c.ApplicableHomestayIDs = nil
	}
	return &c, nil
}

// homestayIDs maps a nil list to an empty array; the column is NOT NULL.
func homestayIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
