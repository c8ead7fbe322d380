package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Constraint names the repositories map to domain errors.
const (
	ConstraintCouponCode       = "coupons_coupon_code_key"
	ConstraintUsageBooking     = "coupon_usages_booking_id_key"
	ConstraintUsageWithinLimit = "coupons_usage_within_limit"
)

// Schema creates the coupon tables and the read models for users and
// bookings. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS coupons (
	id                      BIGSERIAL PRIMARY KEY,
	coupon_code             VARCHAR(50)   NOT NULL,
	name                    VARCHAR(200)  NOT NULL,
	description             VARCHAR(1000) NOT NULL DEFAULT '',
	coupon_type             VARCHAR(20)   NOT NULL,
	discount_kind           VARCHAR(20)   NOT NULL,
	discount_value          NUMERIC(18,4) NOT NULL CHECK (discount_value > 0),
	max_discount_amount     NUMERIC(18,4) CHECK (max_discount_amount > 0),
	start_date              DATE          NOT NULL,
	end_date                DATE          NOT NULL,
	total_usage_limit       INTEGER       CHECK (total_usage_limit >= 1),
	current_usage_count     INTEGER       NOT NULL DEFAULT 0 CHECK (current_usage_count >= 0),
	usage_per_user          INTEGER       CHECK (usage_per_user >= 1),
	minimum_booking_amount  NUMERIC(18,4) CHECK (minimum_booking_amount >= 0),
	minimum_nights          INTEGER       CHECK (minimum_nights BETWEEN 1 AND 365),
	is_first_booking_only   BOOLEAN       NOT NULL DEFAULT FALSE,
	is_new_user_only        BOOLEAN       NOT NULL DEFAULT FALSE,
	scope                   VARCHAR(20)   NOT NULL,
	specific_homestay_id    BIGINT,
	applicable_homestay_ids BIGINT[]      NOT NULL DEFAULT '{}',
	is_active               BOOLEAN       NOT NULL DEFAULT TRUE,
	is_public               BOOLEAN       NOT NULL DEFAULT FALSE,
	priority                INTEGER       NOT NULL DEFAULT 0 CHECK (priority BETWEEN 0 AND 100),
	created_by_user_id      BIGINT        NOT NULL DEFAULT 0,
	created_by_name         VARCHAR(200)  NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	updated_at              TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	CONSTRAINT coupons_coupon_code_key UNIQUE (coupon_code),
	CONSTRAINT coupons_code_format CHECK (coupon_code ~ '^[A-Z0-9_-]{3,50}$'),
	CONSTRAINT coupons_date_range CHECK (start_date <= end_date),
	CONSTRAINT coupons_usage_within_limit CHECK (total_usage_limit IS NULL OR current_usage_count <= total_usage_limit),
	CONSTRAINT coupons_discount_kind CHECK (discount_kind IN ('percentage', 'fixed_amount')),
	CONSTRAINT coupons_percentage_range CHECK (discount_kind <> 'percentage' OR discount_value <= 100),
	CONSTRAINT coupons_cap_percentage_only CHECK (discount_kind = 'percentage' OR max_discount_amount IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_coupons_public ON coupons (is_public, is_active, end_date);

CREATE TABLE IF NOT EXISTS coupon_usages (
	id              BIGSERIAL PRIMARY KEY,
	coupon_id       BIGINT        NOT NULL REFERENCES coupons (id),
	coupon_code     VARCHAR(50)   NOT NULL,
	user_id         BIGINT        NOT NULL,
	user_name       VARCHAR(200)  NOT NULL DEFAULT '',
	booking_id      BIGINT        NOT NULL,
	booking_code    VARCHAR(100)  NOT NULL DEFAULT '',
	discount_amount NUMERIC(18,4) NOT NULL CHECK (discount_amount >= 0),
	used_at         TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	CONSTRAINT coupon_usages_booking_id_key UNIQUE (booking_id)
);

CREATE INDEX IF NOT EXISTS idx_coupon_usages_coupon_user ON coupon_usages (coupon_id, user_id);

CREATE TABLE IF NOT EXISTS users (
	id         BIGINT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bookings (
	id         BIGINT PRIMARY KEY,
	user_id    BIGINT      NOT NULL,
	status     VARCHAR(30) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bookings_user_status ON bookings (user_id, status);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db TxQuerier) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info().Msg("database schema applied")
	return nil
}
