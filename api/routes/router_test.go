package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baselhussain/ketoplan-backend/internal/admission"
	"github.com/baselhussain/ketoplan-backend/internal/delivery"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	pkgauth "github.com/baselhussain/ketoplan-backend/pkg/auth"
	"github.com/baselhussain/ketoplan-backend/pkg/config"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/square"
	"gorm.io/gorm"
)

const (
	testWebhookSecret = "router-test-webhook-secret"
	testJWTSecret     = "router-test-jwt-secret"
	testJWTIssuer     = "ketoplan-test"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubAdmission struct {
	handled []string
}

func (s *stubAdmission) HandleEvent(ctx context.Context, event *admission.PaymentEvent) error {
	s.handled = append(s.handled, event.EventID)
	return nil
}

type stubIdempotencyStore struct{}

func (stubIdempotencyStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (stubIdempotencyStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return true, nil
}

func (stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("kp:idempotency:%s:%s", scope, id)
}

func (stubIdempotencyStore) Del(context.Context, ...string) error {
	return nil
}

type stubResolutionService struct {
	entry models.ResolutionEntry
}

func (s stubResolutionService) Enqueue(ctx context.Context, params resolution.EnqueueParams) (*models.ResolutionEntry, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (s stubResolutionService) EnqueueTx(ctx context.Context, tx *gorm.DB, params resolution.EnqueueParams) (*models.ResolutionEntry, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (s stubResolutionService) Get(ctx context.Context, id uuid.UUID) (*models.ResolutionEntry, error) {
	entry := s.entry
	entry.ID = id
	return &entry, nil
}

func (s stubResolutionService) List(ctx context.Context, query resolution.ListQuery) (*resolution.ListResult, error) {
	return &resolution.ListResult{
		Entries:      []models.ResolutionEntry{s.entry},
		PendingCount: 1,
	}, nil
}

func (s stubResolutionService) Resolve(ctx context.Context, id uuid.UUID, assignee, notes string) (*models.ResolutionEntry, error) {
	entry := s.entry
	entry.ID = id
	entry.Status = enums.ResolutionStatusResolved
	return &entry, nil
}

func (s stubResolutionService) MarkInProgress(ctx context.Context, id uuid.UUID, assignee string) (*models.ResolutionEntry, error) {
	entry := s.entry
	entry.ID = id
	entry.Status = enums.ResolutionStatusInProgress
	entry.Assignee = &assignee
	return &entry, nil
}

type stubDeliveryService struct {
	redelivered []string
}

func (s *stubDeliveryService) Deliver(ctx context.Context, paymentID string) error {
	return nil
}

func (s *stubDeliveryService) Redeliver(ctx context.Context, paymentID string) error {
	s.redelivered = append(s.redelivered, paymentID)
	return nil
}

type stubOrdersRepo struct {
	plan  models.MealPlan
	order models.Order
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository {
	return s
}

func (s *stubOrdersRepo) CreateOrderIfAbsent(ctx context.Context, order *models.Order) (bool, error) {
	return true, nil
}

func (s *stubOrdersRepo) CreatePlanIfAbsent(ctx context.Context, plan *models.MealPlan) (bool, error) {
	return true, nil
}

func (s *stubOrdersRepo) FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	order := s.order
	order.PaymentID = paymentID
	return &order, nil
}

func (s *stubOrdersRepo) FindPlanByPaymentID(ctx context.Context, paymentID string) (*models.MealPlan, error) {
	plan := s.plan
	plan.PaymentID = paymentID
	return &plan, nil
}

func (s *stubOrdersRepo) UpdateOrderStatus(ctx context.Context, paymentID string, status enums.OrderStatus) error {
	return nil
}

func (s *stubOrdersRepo) UpdatePlanStatus(ctx context.Context, paymentID string, status enums.PlanStatus) error {
	return nil
}

func (s *stubOrdersRepo) SetPlanPreferences(ctx context.Context, paymentID string, preferences json.RawMessage) error {
	return nil
}

func (s *stubOrdersRepo) SetPlanArtifact(ctx context.Context, paymentID, storageObject, model string) error {
	return nil
}

func (s *stubOrdersRepo) MarkPlanDelivered(ctx context.Context, paymentID string, deliveredAt time.Time) error {
	return nil
}

func (s *stubOrdersRepo) IncrementPlanRefundCount(ctx context.Context, paymentID string) error {
	return nil
}

type stubRefunder struct {
	keys []string
}

func (s *stubRefunder) RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error) {
	s.keys = append(s.keys, params.IdempotencyKey)
	status := "PENDING"
	return &sq.PaymentRefund{ID: "refund_1", Status: &status}, nil
}

type routerFixture struct {
	handler    http.Handler
	cfg        *config.Config
	admission  *stubAdmission
	delivery   *stubDeliveryService
	refunder   *stubRefunder
	ordersRepo *stubOrdersRepo
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		AdminJWT: config.AdminJWTConfig{
			Secret:            testJWTSecret,
			Issuer:            testJWTIssuer,
			ExpirationMinutes: 15,
		},
		Webhook: config.WebhookConfig{
			Secret:    testWebhookSecret,
			Tolerance: 5 * time.Minute,
		},
	}

	verifier, err := admission.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	require.NoError(t, err)

	guard, err := admission.NewIdempotencyGuard(stubIdempotencyStore{}, time.Hour, "webhook")
	require.NoError(t, err)

	admissionSvc := &stubAdmission{}
	deliverySvc := &stubDeliveryService{}
	refunder := &stubRefunder{}
	ordersRepo := &stubOrdersRepo{
		order: models.Order{
			Email:       "user@example.com",
			AmountCents: 4900,
			Currency:    "usd",
			Status:      enums.OrderStatusSucceeded,
		},
		plan: models.MealPlan{Status: enums.PlanStatusCompleted},
	}

	handler := NewRouter(RouterParams{
		Config:     cfg,
		Logger:     logg,
		DB:         stubPinger{},
		GCS:        stubPinger{},
		Admission:  admissionSvc,
		Verifier:   verifier,
		EventGuard: guard,
		Resolution: stubResolutionService{entry: models.ResolutionEntry{
			ID:          uuid.New(),
			PaymentID:   "pay_1",
			Email:       "user@example.com",
			IssueType:   enums.IssueTypeNotificationFailed,
			Status:      enums.ResolutionStatusPending,
			SLADeadline: time.Now().Add(24 * time.Hour),
		}},
		Delivery:   deliverySvc,
		OrdersRepo: ordersRepo,
		Refunder:   refunder,
	})

	return &routerFixture{
		handler:    handler,
		cfg:        cfg,
		admission:  admissionSvc,
		delivery:   deliverySvc,
		refunder:   refunder,
		ordersRepo: ordersRepo,
	}
}

func (f *routerFixture) adminToken(t *testing.T) string {
	t.Helper()
	token, err := pkgauth.MintAdminToken(f.cfg.AdminJWT, time.Now(), "ops@ketoplan.app")
	require.NoError(t, err)
	return token
}

func signedWebhookRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(body))
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Webhook-Timestamp", timestamp)
	req.Header.Set("X-Webhook-Signature", admission.Sign([]byte(testWebhookSecret), timestamp, body))
	return req
}

func paymentEventBody(eventID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event_id":%q,"event_type":"succeeded","payment_id":"pay_1","email":"user@example.com","amount_cents":4900,"currency":"usd","provider_ts":%d}`,
		eventID, time.Now().Unix(),
	))
}

func TestHealthLive(t *testing.T) {
	fixture := newRouterFixture(t)

	rec := httptest.NewRecorder()
	fixture.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-KetoPlan-Env"))
}

func TestHealthReady(t *testing.T) {
	fixture := newRouterFixture(t)

	rec := httptest.NewRecorder()
	fixture.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	// Redis is not wired in the fixture, so the probe reports it skipped but
	// still ready.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"up"`)
	assert.Contains(t, rec.Body.String(), `"redis":"skipped"`)
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	fixture := newRouterFixture(t)

	rec := httptest.NewRecorder()
	fixture.handler.ServeHTTP(rec, signedWebhookRequest(t, paymentEventBody("evt_router_1")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"evt_router_1"}, fixture.admission.handled)
}

func TestWebhookRejectsUnsignedRequest(t *testing.T) {
	fixture := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(paymentEventBody("evt_router_2")))

	rec := httptest.NewRecorder()
	fixture.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, fixture.admission.handled)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	fixture := newRouterFixture(t)

	paths := []string{
		"/api/admin/v1/resolution",
		"/api/admin/v1/plans/pay_1",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		fixture.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminResolutionList(t *testing.T) {
	fixture := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/resolution?status=pending", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.adminToken(t))

	rec := httptest.NewRecorder()
	fixture.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_id":"pay_1"`)
	assert.Contains(t, rec.Body.String(), `"pending_count":1`)
}

func TestAdminPlanRegenerate(t *testing.T) {
	fixture := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/plans/pay_1/regenerate", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.adminToken(t))

	rec := httptest.NewRecorder()
	fixture.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"pay_1"}, fixture.delivery.redelivered)
}

func TestAdminOrderRefund(t *testing.T) {
	fixture := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/pay_1/refund", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.adminToken(t))

	rec := httptest.NewRecorder()
	fixture.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"manual-refund-pay_1"}, fixture.refunder.keys)

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "refund_1", envelope.Data["refund_id"])
	assert.Equal(t, "PENDING", envelope.Data["status"])
	assert.Equal(t, "49", envelope.Data["amount"])
}

var _ delivery.Service = (*stubDeliveryService)(nil)
