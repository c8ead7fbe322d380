package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fairyhunter13/homestay-coupon-service/internal/config"
	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes coupon events to the coupon topic, keyed by coupon
// code so events for one coupon stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for cfg.CouponTopic.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.CouponTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// PublishCouponRedeemed emits a coupon.redeemed event for usage.
func (p *KafkaPublisher) PublishCouponRedeemed(ctx context.Context, usage *model.CouponUsage) error {
	env, err := NewEnvelope(TypeCouponRedeemed, usage, p.now())
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(usage.CouponCode),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeCouponRedeemed)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for booking %d: %w", TypeCouponRedeemed, usage.BookingID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCouponRedeemed(context.Context, *model.CouponUsage) error { return nil }

func (NoopPublisher) Close() error { return nil }
