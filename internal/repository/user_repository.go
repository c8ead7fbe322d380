package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/homestay-coupon-service/pkg/database"
)

// BookingStatusCompleted marks a stay that counts as a prior booking.
const BookingStatusCompleted = "completed"

// UserRepository reads the user and booking read models.
type UserRepository struct {
	pool database.TxQuerier
}

// NewUserRepository creates a new UserRepository with the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// NewUserRepositoryWithPool creates a new UserRepository with a custom pool interface.
// This is primarily used for testing.
func NewUserRepositoryWithPool(pool database.TxQuerier) *UserRepository {
	return &UserRepository{pool: pool}
}

// HasCompletedBooking reports whether the user has any completed booking.
func (r *UserRepository) HasCompletedBooking(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM bookings WHERE user_id = $1 AND status = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, BookingStatusCompleted).Scan(&exists); err != nil {
		return false, fmt.Errorf("check completed bookings for user %d: %w", userID, err)
	}
	return exists, nil
}

// RegisteredAt returns when the user signed up, or nil if the user is unknown.
func (r *UserRepository) RegisteredAt(ctx context.Context, userID int64) (*time.Time, error) {
	query := `SELECT created_at FROM users WHERE id = $1`

	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query, userID).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &createdAt, nil
}

// SaveBookingStatus upserts one booking into the read model.
func (r *UserRepository) SaveBookingStatus(ctx context.Context, bookingID, userID int64, status string) error {
	query := `INSERT INTO bookings (id, user_id, status, updated_at) VALUES ($1, $2, $3, NOW())
	ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, query, bookingID, userID, status); err != nil {
		return fmt.Errorf("save booking %d status: %w", bookingID, err)
	}
	return nil
}
