package resolution

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/pagination"
)

type fakeRepo struct {
	entries   map[uuid.UUID]*models.ResolutionEntry
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: map[uuid.UUID]*models.ResolutionEntry{}}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, entry *models.ResolutionEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	copied := *entry
	f.entries[entry.ID] = &copied
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ResolutionEntry, error) {
	entry, ok := f.entries[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "resolution entry not found")
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeRepo) HasActive(ctx context.Context, paymentID string, issueType enums.IssueType) (bool, error) {
	for _, entry := range f.entries {
		if entry.PaymentID == paymentID && entry.IssueType == issueType && entry.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) List(ctx context.Context, params ListParams) ([]models.ResolutionEntry, *pagination.Cursor, error) {
	var out []models.ResolutionEntry
	for _, entry := range f.entries {
		if params.Status != nil && entry.Status != *params.Status {
			continue
		}
		out = append(out, *entry)
	}
	return out, nil, nil
}

func (f *fakeRepo) CountByStatus(ctx context.Context, status enums.ResolutionStatus) (int64, error) {
	var count int64
	for _, entry := range f.entries {
		if entry.Status == status {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) CountBreached(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	for _, entry := range f.entries {
		if entry.Status.IsActive() && entry.SLADeadline.Before(now) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) FindBreached(ctx context.Context, now time.Time) ([]models.ResolutionEntry, error) {
	var out []models.ResolutionEntry
	for _, entry := range f.entries {
		if entry.Status.IsActive() && entry.SLADeadline.Before(now) {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (f *fakeRepo) Update(ctx context.Context, entry *models.ResolutionEntry) error {
	copied := *entry
	f.entries[entry.ID] = &copied
	return nil
}

func (f *fakeRepo) TransitionActive(ctx context.Context, id uuid.UUID, to enums.ResolutionStatus, fields map[string]any) (bool, error) {
	entry, ok := f.entries[id]
	if !ok || !entry.Status.IsActive() {
		return false, nil
	}
	entry.Status = to
	if v, ok := fields["resolved_at"].(time.Time); ok {
		entry.ResolvedAt = &v
	}
	if v, ok := fields["assignee"].(string); ok {
		entry.Assignee = &v
	}
	if v, ok := fields["notes"].(string); ok {
		entry.Notes = &v
	}
	return true, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, repo Repository, now time.Time) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Logger:   logg,
		Repo:     repo,
		TxRunner: fakeTxRunner{},
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestEnqueueSetsDeadlineFromBudget(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, repo, now)

	entry, created, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1",
		Email:     "User+x@Gmail.com",
		IssueType: enums.IssueTypeMissingIntakeData,
		Notes:     "no intake row",
	})

	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, now.Add(4*time.Hour), entry.SLADeadline)
	assert.Equal(t, enums.ResolutionStatusPending, entry.Status)
	assert.Equal(t, "user@gmail.com", entry.NormalizedEmail)
	require.NotNil(t, entry.Notes)
	assert.Equal(t, "no intake row", *entry.Notes)
}

func TestEnqueueIsNoOpForActivePair(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, time.Now())

	_, created, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1",
		Email:     "user@example.com",
		IssueType: enums.IssueTypeNotificationFailed,
	})
	require.NoError(t, err)
	require.True(t, created)

	entry, created, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1",
		Email:     "user@example.com",
		IssueType: enums.IssueTypeNotificationFailed,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, entry)
	assert.Len(t, repo.entries, 1)
}

func TestEnqueueTreatsLostInsertRaceAsActive(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, time.Now())

	// A concurrent insert between the active check and the insert surfaces as
	// a violation of the partial unique index.
	repo.createErr = errors.New(`ERROR: duplicate key value violates unique constraint "idx_resolution_entries_active_issue" (SQLSTATE 23505)`)

	entry, created, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1",
		Email:     "user@example.com",
		IssueType: enums.IssueTypeNotificationFailed,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, entry)
}

func TestEnqueueSurfacesOtherCreateErrors(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, time.Now())
	repo.createErr = errors.New("connection reset by peer")

	_, _, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1",
		Email:     "user@example.com",
		IssueType: enums.IssueTypeNotificationFailed,
	})
	assert.Error(t, err)
}

func TestEnqueueTxSharesCallerTransaction(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, repo, now)

	entry, created, err := svc.EnqueueTx(context.Background(), nil, EnqueueParams{
		PaymentID: "pay_1",
		Email:     "user@example.com",
		IssueType: enums.IssueTypeGenerationValidationFailed,
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, now.Add(4*time.Hour), entry.SLADeadline)
	assert.Len(t, repo.entries, 1)

	_, created, err = svc.EnqueueTx(context.Background(), nil, EnqueueParams{
		PaymentID: "pay_1",
		Email:     "user@example.com",
		IssueType: enums.IssueTypeGenerationValidationFailed,
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnqueueAllowsDifferentIssueTypes(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, time.Now())

	_, created, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1", Email: "a@b.com", IssueType: enums.IssueTypeNotificationFailed,
	})
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1", Email: "a@b.com", IssueType: enums.IssueTypeManualRefundRequired,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, repo.entries, 2)
}

func TestEnqueueValidatesInput(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), time.Now())

	_, _, err := svc.Enqueue(context.Background(), EnqueueParams{Email: "a@b.com", IssueType: enums.IssueTypeNotificationFailed})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = svc.Enqueue(context.Background(), EnqueueParams{PaymentID: "pay_1", Email: "a@b.com", IssueType: enums.IssueType("bogus")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveTransitionsActiveEntry(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, repo, now)

	created, _, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1", Email: "a@b.com", IssueType: enums.IssueTypeGenerationValidationFailed,
	})
	require.NoError(t, err)

	entry, err := svc.Resolve(context.Background(), created.ID, "ops@ketoplan.app", "regenerated manually")
	require.NoError(t, err)
	assert.Equal(t, enums.ResolutionStatusResolved, entry.Status)
	require.NotNil(t, entry.ResolvedAt)
	assert.Equal(t, now, *entry.ResolvedAt)
	require.NotNil(t, entry.Assignee)
	assert.Equal(t, "ops@ketoplan.app", *entry.Assignee)
}

func TestResolveRejectsTerminalEntry(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, time.Now())

	created, _, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1", Email: "a@b.com", IssueType: enums.IssueTypeNotificationFailed,
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), created.ID, "ops", "")
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), created.ID, "ops", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestResolveMissingEntryReturnsNotFound(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), time.Now())

	_, err := svc.Resolve(context.Background(), uuid.New(), "ops", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkInProgress(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, time.Now())

	created, _, err := svc.Enqueue(context.Background(), EnqueueParams{
		PaymentID: "pay_1", Email: "a@b.com", IssueType: enums.IssueTypeNotificationFailed,
	})
	require.NoError(t, err)

	entry, err := svc.MarkInProgress(context.Background(), created.ID, "ops")
	require.NoError(t, err)
	assert.Equal(t, enums.ResolutionStatusInProgress, entry.Status)

	// In-progress entries stay mutable.
	_, err = svc.Resolve(context.Background(), created.ID, "ops", "done")
	require.NoError(t, err)
}

func TestListReturnsCounts(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, repo, now)

	breached := &models.ResolutionEntry{
		ID:          uuid.New(),
		PaymentID:   "pay_old",
		IssueType:   enums.IssueTypeNotificationFailed,
		Status:      enums.ResolutionStatusPending,
		SLADeadline: now.Add(-time.Minute),
	}
	require.NoError(t, repo.Create(context.Background(), breached))

	fresh := &models.ResolutionEntry{
		ID:          uuid.New(),
		PaymentID:   "pay_new",
		IssueType:   enums.IssueTypeMissingIntakeData,
		Status:      enums.ResolutionStatusPending,
		SLADeadline: now.Add(time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), fresh))

	result, err := svc.List(context.Background(), ListQuery{})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, int64(2), result.PendingCount)
	assert.Equal(t, int64(1), result.BreachedCount)
}

func TestListRejectsBadFilter(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), time.Now())

	_, err := svc.List(context.Background(), ListQuery{Status: "bogus"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListQuery{Cursor: "!!!"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
