package events

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

// mockReader fails the first fetchFailures fetches with fetchErr, hands out
// queued messages, then blocks until ctx is done.
type mockReader struct {
	mu            sync.Mutex
	queue         []kafka.Message
	fetchErr      error
	fetchFailures int
	fetches       int
	commitErr     error
	committed     []kafka.Message
	onDrained     func()
}

func (m *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	m.fetches++
	if m.fetchFailures > 0 {
		m.fetchFailures--
		err := m.fetchErr
		m.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	drained := m.onDrained
	m.mu.Unlock()

	if drained != nil {
		drained()
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockReader) Close() error { return nil }

type mockRedeemer struct {
	redeemFn func(ctx context.Context, actor model.Actor, req *model.RedeemCouponRequest) (*model.CouponUsage, model.CouponValidationResult, error)
	calls    int
}

func (m *mockRedeemer) Redeem(ctx context.Context, actor model.Actor, req *model.RedeemCouponRequest) (*model.CouponUsage, model.CouponValidationResult, error) {
	m.calls++
	if m.redeemFn != nil {
		return m.redeemFn(ctx, actor, req)
	}
	return &model.CouponUsage{ID: 1, CouponCode: req.CouponCode, BookingID: req.BookingID}, model.CouponValidationResult{IsValid: true}, nil
}

type savedStatus struct {
	bookingID int64
	userID    int64
	status    string
}

type mockBookingStore struct {
	saved []savedStatus
	err   error
}

func (m *mockBookingStore) SaveBookingStatus(ctx context.Context, bookingID, userID int64, status string) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, savedStatus{bookingID, userID, status})
	return nil
}
