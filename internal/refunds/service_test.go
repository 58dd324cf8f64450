package refunds

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

type fakeRefundsRepo struct {
	counters  map[string]*models.RefundAbuseCounter
	blacklist map[string]*models.EmailBlacklistEntry
}

func newFakeRefundsRepo() *fakeRefundsRepo {
	return &fakeRefundsRepo{
		counters:  map[string]*models.RefundAbuseCounter{},
		blacklist: map[string]*models.EmailBlacklistEntry{},
	}
}

func (f *fakeRefundsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRefundsRepo) IncrementCounter(ctx context.Context, email string, now time.Time) (int, error) {
	counter, ok := f.counters[email]
	if !ok {
		counter = &models.RefundAbuseCounter{NormalizedEmail: email}
		f.counters[email] = counter
	}
	counter.Count++
	counter.UpdatedAt = now
	return counter.Count, nil
}

func (f *fakeRefundsRepo) DecrementCounter(ctx context.Context, email string, now time.Time) error {
	if counter, ok := f.counters[email]; ok && counter.Count > 0 {
		counter.Count--
		counter.UpdatedAt = now
	}
	return nil
}

func (f *fakeRefundsRepo) GetCounter(ctx context.Context, email string) (*models.RefundAbuseCounter, error) {
	if counter, ok := f.counters[email]; ok {
		copied := *counter
		return &copied, nil
	}
	return &models.RefundAbuseCounter{NormalizedEmail: email}, nil
}

func (f *fakeRefundsRepo) UpsertBlacklist(ctx context.Context, entry *models.EmailBlacklistEntry) error {
	copied := *entry
	f.blacklist[entry.NormalizedEmail] = &copied
	return nil
}

func (f *fakeRefundsRepo) FindBlacklist(ctx context.Context, email string) (*models.EmailBlacklistEntry, error) {
	if entry, ok := f.blacklist[email]; ok {
		copied := *entry
		return &copied, nil
	}
	return nil, nil
}

type fakeOrdersRepo struct {
	orders map[string]*models.Order
	plans  map[string]*models.MealPlan
}

func newFakeOrdersRepo() *fakeOrdersRepo {
	return &fakeOrdersRepo{
		orders: map[string]*models.Order{},
		plans:  map[string]*models.MealPlan{},
	}
}

func (f *fakeOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *fakeOrdersRepo) CreateOrderIfAbsent(ctx context.Context, order *models.Order) (bool, error) {
	if _, ok := f.orders[order.PaymentID]; ok {
		return false, nil
	}
	copied := *order
	f.orders[order.PaymentID] = &copied
	return true, nil
}

func (f *fakeOrdersRepo) CreatePlanIfAbsent(ctx context.Context, plan *models.MealPlan) (bool, error) {
	if _, ok := f.plans[plan.PaymentID]; ok {
		return false, nil
	}
	copied := *plan
	f.plans[plan.PaymentID] = &copied
	return true, nil
}

func (f *fakeOrdersRepo) FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	if order, ok := f.orders[paymentID]; ok {
		copied := *order
		return &copied, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (f *fakeOrdersRepo) FindPlanByPaymentID(ctx context.Context, paymentID string) (*models.MealPlan, error) {
	if plan, ok := f.plans[paymentID]; ok {
		copied := *plan
		return &copied, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "meal plan not found")
}

func (f *fakeOrdersRepo) UpdateOrderStatus(ctx context.Context, paymentID string, status enums.OrderStatus) error {
	if order, ok := f.orders[paymentID]; ok {
		order.Status = status
	}
	return nil
}

func (f *fakeOrdersRepo) UpdatePlanStatus(ctx context.Context, paymentID string, status enums.PlanStatus) error {
	if plan, ok := f.plans[paymentID]; ok {
		plan.Status = status
	}
	return nil
}

func (f *fakeOrdersRepo) SetPlanPreferences(ctx context.Context, paymentID string, preferences json.RawMessage) error {
	if plan, ok := f.plans[paymentID]; ok {
		plan.Preferences = preferences
	}
	return nil
}

func (f *fakeOrdersRepo) SetPlanArtifact(ctx context.Context, paymentID, storageObject, model string) error {
	if plan, ok := f.plans[paymentID]; ok {
		plan.StorageObject = &storageObject
		plan.Model = model
	}
	return nil
}

func (f *fakeOrdersRepo) MarkPlanDelivered(ctx context.Context, paymentID string, deliveredAt time.Time) error {
	if plan, ok := f.plans[paymentID]; ok {
		plan.Status = enums.PlanStatusCompleted
		plan.DeliveredAt = &deliveredAt
	}
	return nil
}

func (f *fakeOrdersRepo) IncrementPlanRefundCount(ctx context.Context, paymentID string) error {
	if plan, ok := f.plans[paymentID]; ok {
		plan.RefundCount++
	}
	return nil
}

type fakeQueue struct {
	enqueued []resolution.EnqueueParams
}

func (f *fakeQueue) Enqueue(ctx context.Context, params resolution.EnqueueParams) (*models.ResolutionEntry, bool, error) {
	f.enqueued = append(f.enqueued, params)
	return &models.ResolutionEntry{PaymentID: params.PaymentID, IssueType: params.IssueType}, true, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type trackerFixture struct {
	svc        Service
	repo       *fakeRefundsRepo
	ordersRepo *fakeOrdersRepo
	queue      *fakeQueue
	now        time.Time
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	fx := &trackerFixture{
		repo:       newFakeRefundsRepo(),
		ordersRepo: newFakeOrdersRepo(),
		queue:      &fakeQueue{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Logger:     logg,
		Repo:       fx.repo,
		OrdersRepo: fx.ordersRepo,
		Resolution: fx.queue,
		TxRunner:   fakeTxRunner{},
		Now:        func() time.Time { return fx.now },
	})
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func (fx *trackerFixture) seedOrder(paymentID, email string) {
	fx.ordersRepo.orders[paymentID] = &models.Order{
		PaymentID:       paymentID,
		Email:           email,
		NormalizedEmail: email,
		Status:          enums.OrderStatusSucceeded,
	}
	fx.ordersRepo.plans[paymentID] = &models.MealPlan{
		PaymentID:       paymentID,
		NormalizedEmail: email,
		Status:          enums.PlanStatusCompleted,
	}
}

func TestHandleRefundMarksOrderAndPlan(t *testing.T) {
	fx := newTrackerFixture(t)
	fx.seedOrder("pay_1", "user@x.com")

	err := fx.svc.HandleRefund(context.Background(), Event{
		PaymentID: "pay_1",
		Email:     "user@x.com",
		Type:      enums.EventTypeRefunded,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusRefunded, fx.ordersRepo.orders["pay_1"].Status)
	assert.Equal(t, enums.PlanStatusRefunded, fx.ordersRepo.plans["pay_1"].Status)
	assert.Equal(t, 1, fx.ordersRepo.plans["pay_1"].RefundCount)
	assert.Equal(t, 1, fx.repo.counters["user@x.com"].Count)
	assert.Empty(t, fx.queue.enqueued)
	assert.Empty(t, fx.repo.blacklist)
}

func TestHandleRefundToleratesMissingOrder(t *testing.T) {
	fx := newTrackerFixture(t)

	err := fx.svc.HandleRefund(context.Background(), Event{
		PaymentID: "pay_unknown",
		Email:     "user@x.com",
		Type:      enums.EventTypeRefunded,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.repo.counters["user@x.com"].Count)
}

func TestSecondRefundFlagsPattern(t *testing.T) {
	fx := newTrackerFixture(t)
	fx.seedOrder("pay_1", "user@x.com")
	fx.seedOrder("pay_2", "user@x.com")

	for _, paymentID := range []string{"pay_1", "pay_2"} {
		err := fx.svc.HandleRefund(context.Background(), Event{
			PaymentID: paymentID,
			Email:     "user@x.com",
			Type:      enums.EventTypeRefunded,
		})
		require.NoError(t, err)
	}

	require.Len(t, fx.queue.enqueued, 1)
	assert.Equal(t, enums.IssueTypeManualRefundRequired, fx.queue.enqueued[0].IssueType)
	assert.Equal(t, "pay_2", fx.queue.enqueued[0].PaymentID)
	// Flagged but not yet blocked.
	assert.Empty(t, fx.repo.blacklist)
}

func TestThirdRefundBlocksPurchases(t *testing.T) {
	fx := newTrackerFixture(t)

	for _, paymentID := range []string{"pay_1", "pay_2", "pay_3"} {
		fx.seedOrder(paymentID, "user@x.com")
		err := fx.svc.HandleRefund(context.Background(), Event{
			PaymentID: paymentID,
			Email:     "user@x.com",
			Type:      enums.EventTypeRefunded,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, fx.repo.counters["user@x.com"].Count)
	entry := fx.repo.blacklist["user@x.com"]
	require.NotNil(t, entry)
	assert.Equal(t, enums.BlacklistReasonRefundAbuse, entry.Reason)

	blocked, reason, err := fx.svc.IsBlocked(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, enums.BlacklistReasonRefundAbuse, reason)
}

func TestChargebackBlacklistsUnconditionally(t *testing.T) {
	fx := newTrackerFixture(t)
	fx.seedOrder("pay_1", "user@x.com")

	err := fx.svc.HandleRefund(context.Background(), Event{
		PaymentID: "pay_1",
		Email:     "user@x.com",
		Type:      enums.EventTypeChargeback,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusChargeback, fx.ordersRepo.orders["pay_1"].Status)
	entry := fx.repo.blacklist["user@x.com"]
	require.NotNil(t, entry)
	assert.Equal(t, enums.BlacklistReasonChargeback, entry.Reason)
	assert.Equal(t, fx.now.Add(90*24*time.Hour), entry.ExpiresAt)
}

func TestBlacklistExpires(t *testing.T) {
	fx := newTrackerFixture(t)
	fx.seedOrder("pay_1", "user@x.com")

	err := fx.svc.HandleRefund(context.Background(), Event{
		PaymentID: "pay_1", Email: "user@x.com", Type: enums.EventTypeChargeback,
	})
	require.NoError(t, err)

	fx.now = fx.now.Add(91 * 24 * time.Hour)
	blocked, _, err := fx.svc.IsBlocked(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestReverseRefundFloorsAtZero(t *testing.T) {
	fx := newTrackerFixture(t)
	fx.seedOrder("pay_1", "user@x.com")

	err := fx.svc.HandleRefund(context.Background(), Event{
		PaymentID: "pay_1", Email: "user@x.com", Type: enums.EventTypeRefunded,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.repo.counters["user@x.com"].Count)

	require.NoError(t, fx.svc.ReverseRefund(context.Background(), "user@x.com"))
	assert.Equal(t, 0, fx.repo.counters["user@x.com"].Count)

	require.NoError(t, fx.svc.ReverseRefund(context.Background(), "user@x.com"))
	assert.Equal(t, 0, fx.repo.counters["user@x.com"].Count)
}

func TestHandleRefundNormalizesIdentity(t *testing.T) {
	fx := newTrackerFixture(t)

	err := fx.svc.HandleRefund(context.Background(), Event{
		PaymentID: "pay_1",
		Email:     "U.ser+promo@Gmail.com",
		Type:      enums.EventTypeRefunded,
	})
	require.NoError(t, err)
	assert.Contains(t, fx.repo.counters, "user@gmail.com")
}

func TestHandleRefundRejectsWrongEventType(t *testing.T) {
	fx := newTrackerFixture(t)

	err := fx.svc.HandleRefund(context.Background(), Event{
		PaymentID: "pay_1",
		Email:     "user@x.com",
		Type:      enums.EventTypeSucceeded,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
