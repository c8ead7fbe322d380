package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published or consumed by this service.
const (
	TypeCouponRedeemed          = "coupon.redeemed"
	TypeBookingPaymentConfirmed = "booking.payment_confirmed"
	TypeBookingCompleted        = "booking.completed"
	TypeBookingCancelled        = "booking.cancelled"
)

const source = "homestay-coupon-service"

// Envelope wraps every event on the wire.
type Envelope struct {
	ID         string          `json:"id"`
	Source     string          `json:"source,omitempty"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into a fresh envelope of the given type.
func NewEnvelope(eventType string, data any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", eventType, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Source:     source,
		Type:       eventType,
		OccurredAt: now.UTC(),
		Data:       raw,
	}, nil
}

// ParseEnvelope decodes a message value. The type is required.
func ParseEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode event envelope: missing type")
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return nil
}
