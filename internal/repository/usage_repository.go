package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/internal/service"
	"github.com/fairyhunter13/homestay-coupon-service/pkg/database"
)

// UsageRepository provides data access for coupon usages using pgx.
type UsageRepository struct {
	pool database.TxQuerier
}

// NewUsageRepository creates a new UsageRepository with the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// NewUsageRepositoryWithPool creates a new UsageRepository with a custom pool interface.
// This is primarily used for testing.
func NewUsageRepositoryWithPool(pool database.TxQuerier) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Insert records a usage within a transaction and sets its ID and UsedAt.
// Returns service.ErrBookingAlreadyHasCoupon if the booking already has one.
func (r *UsageRepository) Insert(ctx context.Context, tx database.TxQuerier, u *model.CouponUsage) error {
	query := `INSERT INTO coupon_usages
		(coupon_id, coupon_code, user_id, user_name, booking_id, booking_code, discount_amount)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, used_at`

	err := tx.QueryRow(ctx, query,
		u.CouponID, u.CouponCode, u.UserID, u.UserName, u.BookingID, u.BookingCode, u.DiscountAmount,
	).Scan(&u.ID, &u.UsedAt)
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintUsageBooking) {
			return service.ErrBookingAlreadyHasCoupon
		}
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// CountByUser counts how many times userID has redeemed couponID.
func (r *UsageRepository) CountByUser(ctx context.Context, couponID, userID int64) (int, error) {
	return r.CountByUserTx(ctx, r.pool, couponID, userID)
}

// CountByUserTx is CountByUser on the given querier, usually an open transaction.
func (r *UsageRepository) CountByUserTx(ctx context.Context, q database.TxQuerier, couponID, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	var count int
	if err := q.QueryRow(ctx, query, couponID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usages of coupon %d by user %d: %w", couponID, userID, err)
	}
	return count, nil
}

// ListByCoupon returns the usages of a coupon, oldest first.
// On success, returns an empty slice (not nil) when none exist.
func (r *UsageRepository) ListByCoupon(ctx context.Context, couponID int64) ([]model.CouponUsage, error) {
	query := `SELECT id, coupon_id, coupon_code, user_id, user_name, booking_id, booking_code, discount_amount, used_at
	FROM coupon_usages WHERE coupon_id = $1 ORDER BY used_at, id`

	rows, err := r.pool.Query(ctx, query, couponID)
	if err != nil {
		return nil, fmt.Errorf("get usages for coupon %d: %w", couponID, err)
	}
	defer rows.Close()

	usages := []model.CouponUsage{}
	for rows.Next() {
		var u model.CouponUsage
		if err := rows.Scan(&u.ID, &u.CouponID, &u.CouponCode, &u.UserID, &u.UserName,
			&u.BookingID, &u.BookingCode, &u.DiscountAmount, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usages = append(usages, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return usages, nil
}
