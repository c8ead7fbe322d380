package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/homestay-coupon-service/internal/config"
	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/internal/service"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
	defaultMaxBackoff  = 30 * time.Second
)

// Booking statuses written to the read model.
const (
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Redeemer applies a coupon to a booking.
type Redeemer interface {
	Redeem(ctx context.Context, actor model.Actor, req *model.RedeemCouponRequest) (*model.CouponUsage, model.CouponValidationResult, error)
}

// BookingStatusStore keeps the booking read model used by first-booking checks.
type BookingStatusStore interface {
	SaveBookingStatus(ctx context.Context, bookingID, userID int64, status string) error
}

// BookingEvent is the payload of booking.* events.
type BookingEvent struct {
	BookingID      int64           `json:"bookingId"`
	BookingCode    string          `json:"bookingCode"`
	UserID         int64           `json:"userId"`
	UserName       string          `json:"userName"`
	HomestayID     int64           `json:"homestayId"`
	CouponCode     string          `json:"couponCode"`
	BookingAmount  decimal.Decimal `json:"bookingAmount"`
	NumberOfNights int             `json:"numberOfNights"`
	CheckInDate    model.Date      `json:"checkInDate"`
	CheckOutDate   model.Date      `json:"checkOutDate"`
}

func (e BookingEvent) redeemRequest() *model.RedeemCouponRequest {
	return &model.RedeemCouponRequest{
		ValidateCouponRequest: model.ValidateCouponRequest{
			CouponCode: e.CouponCode,
			BookingContext: model.BookingContext{
				HomestayID:     e.HomestayID,
				BookingAmount:  e.BookingAmount,
				NumberOfNights: e.NumberOfNights,
				CheckInDate:    e.CheckInDate,
				CheckOutDate:   e.CheckOutDate,
				BookingID:      e.BookingID,
			},
		},
		BookingCode: e.BookingCode,
	}
}

// BookingConsumer listens to booking events. Paid bookings that carry a
// coupon code are redeemed; completed and cancelled bookings update the
// booking read model.
type BookingConsumer struct {
	reader      messageReader
	redeemer    Redeemer
	bookings    BookingStatusStore
	maxAttempts int
	retryDelay  time.Duration
	maxBackoff  time.Duration
}

// NewBookingConsumer creates a consumer group reader on cfg.BookingTopic.
func NewBookingConsumer(cfg config.KafkaConfig, redeemer Redeemer, bookings BookingStatusStore) *BookingConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.BookingTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newBookingConsumer(reader, redeemer, bookings)
}

func newBookingConsumer(r messageReader, redeemer Redeemer, bookings BookingStatusStore) *BookingConsumer {
	return &BookingConsumer{
		reader:      r,
		redeemer:    redeemer,
		bookings:    bookings,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		maxBackoff:  defaultMaxBackoff,
	}
}

// Run consumes until ctx is cancelled. Each message is committed once it is
// handled or has exhausted its retries, so one poison message cannot stall
// the partition. Broker errors are logged and retried with a growing pause.
func (c *BookingConsumer) Run(ctx context.Context) {
	log.Info().Msg("booking event consumer started")
	backoff := c.retryDelay
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Dur("backoff", backoff).Msg("failed to fetch booking event")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.retryDelay

		if err := c.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().
				Err(err).
				Int64("offset", msg.Offset).
				Int("partition", msg.Partition).
				Msg("dropping booking event after retries")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			// An uncommitted event is redelivered; redemption is idempotent per booking.
			log.Error().
				Err(err).
				Int64("offset", msg.Offset).
				Int("partition", msg.Partition).
				Msg("failed to commit booking event")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBackoff)
		}
	}
}

// Close closes the underlying reader.
func (c *BookingConsumer) Close() error {
	return c.reader.Close()
}

func (c *BookingConsumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handleMessage(ctx, msg); err == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("booking event failed, retrying")

		if !sleep(ctx, c.retryDelay*time.Duration(attempt)) {
			return ctx.Err()
		}
	}
	return err
}

// sleep pauses for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// handleMessage returns an error only for failures worth retrying.
func (c *BookingConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	env, err := ParseEnvelope(msg.Value)
	if err != nil {
		log.Error().Err(err).Str("raw", string(msg.Value)).Msg("skipping malformed booking event")
		return nil
	}

	switch env.Type {
	case TypeBookingPaymentConfirmed:
		return c.handlePaymentConfirmed(ctx, env)
	case TypeBookingCompleted:
		return c.saveStatus(ctx, env, BookingStatusCompleted)
	case TypeBookingCancelled:
		return c.saveStatus(ctx, env, BookingStatusCancelled)
	default:
		log.Debug().Str("type", env.Type).Str("id", env.ID).Msg("ignoring booking event")
		return nil
	}
}

func (c *BookingConsumer) handlePaymentConfirmed(ctx context.Context, env Envelope) error {
	var event BookingEvent
	if err := env.DecodeData(&event); err != nil {
		log.Error().Err(err).Str("id", env.ID).Msg("skipping booking event")
		return nil
	}
	if event.CouponCode == "" {
		return nil
	}

	logger := log.With().
		Str("event_id", env.ID).
		Int64("booking_id", event.BookingID).
		Str("coupon_code", event.CouponCode).
		Logger()

	actor := model.Actor{UserID: event.UserID, UserName: event.UserName}
	usage, result, err := c.redeemer.Redeem(ctx, actor, event.redeemRequest())
	switch {
	case err == nil:
		logger.Info().
			Int64("usage_id", usage.ID).
			Str("discount", usage.DiscountAmount.String()).
			Msg("coupon redeemed for paid booking")
		return nil
	case errors.Is(err, service.ErrCouponNotRedeemable):
		logger.Warn().Str("reason", string(result.Reason)).Msg(result.Message)
		return nil
	case errors.Is(err, service.ErrBookingAlreadyHasCoupon),
		errors.Is(err, service.ErrUsageLimitReached),
		errors.Is(err, service.ErrInvalidRequest):
		logger.Warn().Err(err).Msg("coupon not applied to paid booking")
		return nil
	default:
		return fmt.Errorf("redeem coupon for booking %d: %w", event.BookingID, err)
	}
}

func (c *BookingConsumer) saveStatus(ctx context.Context, env Envelope, status string) error {
	var event BookingEvent
	if err := env.DecodeData(&event); err != nil {
		log.Error().Err(err).Str("id", env.ID).Msg("skipping booking event")
		return nil
	}
	if event.BookingID <= 0 || event.UserID <= 0 {
		log.Warn().Str("id", env.ID).Msg("booking event without booking or user id")
		return nil
	}
	return c.bookings.SaveBookingStatus(ctx, event.BookingID, event.UserID, status)
}
