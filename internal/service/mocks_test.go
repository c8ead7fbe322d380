package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/homestay-coupon-service/internal/model"
	"github.com/fairyhunter13/homestay-coupon-service/pkg/database"
)

// mockCouponRepository is a mock implementation of CouponRepositoryInterface.
type mockCouponRepository struct {
	insertFn             func(ctx context.Context, coupon *model.Coupon) error
	getByCodeFn          func(ctx context.Context, code string) (*model.Coupon, error)
	getByIDFn            func(ctx context.Context, id int64) (*model.Coupon, error)
	getByCodeForUpdateFn func(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error)
	updateFn             func(ctx context.Context, coupon *model.Coupon) error
	deactivateFn         func(ctx context.Context, id int64) error
	listPublicFn         func(ctx context.Context, today time.Time, homestayID int64) ([]model.Coupon, error)
	incrementUsageFn     func(ctx context.Context, tx database.TxQuerier, id int64) error
}

func (m *mockCouponRepository) Insert(ctx context.Context, coupon *model.Coupon) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, coupon)
	}
	return nil
}

func (m *mockCouponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, nil
}

func (m *mockCouponRepository) GetByID(ctx context.Context, id int64) (*model.Coupon, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCouponRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error) {
	if m.getByCodeForUpdateFn != nil {
		return m.getByCodeForUpdateFn(ctx, tx, code)
	}
	return nil, ErrCouponNotFound
}

func (m *mockCouponRepository) Update(ctx context.Context, coupon *model.Coupon) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, coupon)
	}
	return nil
}

func (m *mockCouponRepository) Deactivate(ctx context.Context, id int64) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, id)
	}
	return nil
}

func (m *mockCouponRepository) ListPublic(ctx context.Context, today time.Time, homestayID int64) ([]model.Coupon, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx, today, homestayID)
	}
	return nil, nil
}

func (m *mockCouponRepository) IncrementUsage(ctx context.Context, tx database.TxQuerier, id int64) error {
	if m.incrementUsageFn != nil {
		return m.incrementUsageFn(ctx, tx, id)
	}
	return nil
}

// mockUsageRepository is a mock implementation of UsageRepositoryInterface.
type mockUsageRepository struct {
	insertFn        func(ctx context.Context, tx database.TxQuerier, usage *model.CouponUsage) error
	countByUserFn   func(ctx context.Context, couponID, userID int64) (int, error)
	countByUserTxFn func(ctx context.Context, tx database.TxQuerier, couponID, userID int64) (int, error)
	listByCouponFn  func(ctx context.Context, couponID int64) ([]model.CouponUsage, error)
}

func (m *mockUsageRepository) Insert(ctx context.Context, tx database.TxQuerier, usage *model.CouponUsage) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, usage)
	}
	return nil
}

func (m *mockUsageRepository) CountByUser(ctx context.Context, couponID, userID int64) (int, error) {
	if m.countByUserFn != nil {
		return m.countByUserFn(ctx, couponID, userID)
	}
	return 0, nil
}

func (m *mockUsageRepository) CountByUserTx(ctx context.Context, tx database.TxQuerier, couponID, userID int64) (int, error) {
	if m.countByUserTxFn != nil {
		return m.countByUserTxFn(ctx, tx, couponID, userID)
	}
	return 0, nil
}

func (m *mockUsageRepository) ListByCoupon(ctx context.Context, couponID int64) ([]model.CouponUsage, error) {
	if m.listByCouponFn != nil {
		return m.listByCouponFn(ctx, couponID)
	}
	return []model.CouponUsage{}, nil
}

// mockUserRepository is a mock implementation of UserRepositoryInterface.
type mockUserRepository struct {
	hasCompletedBookingFn func(ctx context.Context, userID int64) (bool, error)
	registeredAtFn        func(ctx context.Context, userID int64) (*time.Time, error)
}

func (m *mockUserRepository) HasCompletedBooking(ctx context.Context, userID int64) (bool, error) {
	if m.hasCompletedBookingFn != nil {
		return m.hasCompletedBookingFn(ctx, userID)
	}
	return false, nil
}

func (m *mockUserRepository) RegisteredAt(ctx context.Context, userID int64) (*time.Time, error) {
	if m.registeredAtFn != nil {
		return m.registeredAtFn(ctx, userID)
	}
	return nil, nil
}

// mockCache is an in-memory CouponCache that records calls. Fills carrying
// an old generation are dropped the way the Redis cache drops them.
type mockCache struct {
	mu          sync.Mutex
	items       map[string]*model.Coupon
	generations map[string]int64
	getErr      error
	setErr      error
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{items: map[string]*model.Coupon{}, generations: map[string]int64{}}
}

func (m *mockCache) Get(ctx context.Context, code string) (*model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.items[code], nil
}

func (m *mockCache) Generation(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[code], nil
}

func (m *mockCache) Set(ctx context.Context, coupon *model.Coupon, generation int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if m.generations[coupon.Code] != generation {
		return nil
	}
	m.items[coupon.Code] = coupon
	return nil
}

func (m *mockCache) Invalidate(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, code)
	m.generations[code]++
	delete(m.items, code)
	return nil
}

// mockPublisher records published usages.
type mockPublisher struct {
	published []*model.CouponUsage
	err       error
}

func (m *mockPublisher) PublishCouponRedeemed(ctx context.Context, usage *model.CouponUsage) error {
	m.published = append(m.published, usage)
	return m.err
}

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
	committed  bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}
