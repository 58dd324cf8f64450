package resolution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/internal/identity"
	"github.com/baselhussain/ketoplan-backend/pkg/db"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/pagination"
)

// Service exposes the manual-resolution queue operations.
type Service interface {
	Enqueue(ctx context.Context, params EnqueueParams) (*models.ResolutionEntry, bool, error)
	EnqueueTx(ctx context.Context, tx *gorm.DB, params EnqueueParams) (*models.ResolutionEntry, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ResolutionEntry, error)
	List(ctx context.Context, query ListQuery) (*ListResult, error)
	Resolve(ctx context.Context, id uuid.UUID, assignee, notes string) (*models.ResolutionEntry, error)
	MarkInProgress(ctx context.Context, id uuid.UUID, assignee string) (*models.ResolutionEntry, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the resolution service.
type ServiceParams struct {
	Logger    *logger.Logger
	Repo      Repository
	TxRunner  txRunner
	SLABudget time.Duration
	Now       func() time.Time
}

type service struct {
	logg      *logger.Logger
	repo      Repository
	txRunner  txRunner
	slaBudget time.Duration
	now       func() time.Time
}

const defaultSLABudget = 4 * time.Hour

// NewService validates dependencies and builds the queue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repository is required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("tx runner is required")
	}
	budget := params.SLABudget
	if budget <= 0 {
		budget = defaultSLABudget
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:      params.Logger,
		repo:      params.Repo,
		txRunner:  params.TxRunner,
		slaBudget: budget,
		now:       now,
	}, nil
}

// EnqueueParams describe one unrecoverable failure or abuse flag.
type EnqueueParams struct {
	PaymentID string
	Email     string
	IssueType enums.IssueType
	Notes     string
}

// Enqueue inserts an entry with its SLA deadline unless an active entry
// already exists for the (payment id, issue type) pair. Replayed failures are
// a no-op, so webhook retries never duplicate queue noise. Reports whether an
// entry was created.
func (s *service) Enqueue(ctx context.Context, params EnqueueParams) (*models.ResolutionEntry, bool, error) {
	var (
		entry   *models.ResolutionEntry
		created bool
	)
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, created, txErr = s.enqueue(ctx, s.repo.WithTx(tx), params)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

// EnqueueTx runs the enqueue inside the caller's open transaction, so the
// queue write commits or rolls back together with the caller's own state
// change.
func (s *service) EnqueueTx(ctx context.Context, tx *gorm.DB, params EnqueueParams) (*models.ResolutionEntry, bool, error) {
	return s.enqueue(ctx, s.repo.WithTx(tx), params)
}

func (s *service) enqueue(ctx context.Context, repo Repository, params EnqueueParams) (*models.ResolutionEntry, bool, error) {
	if strings.TrimSpace(params.PaymentID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if !params.IssueType.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid issue type")
	}

	now := s.now()
	entry := &models.ResolutionEntry{
		PaymentID:       params.PaymentID,
		Email:           params.Email,
		NormalizedEmail: identity.Normalize(params.Email),
		IssueType:       params.IssueType,
		Status:          enums.ResolutionStatusPending,
		SLADeadline:     now.Add(s.slaBudget),
	}
	if trimmed := strings.TrimSpace(params.Notes); trimmed != "" {
		entry.Notes = &trimmed
	}

	active, err := repo.HasActive(ctx, params.PaymentID, params.IssueType)
	if err != nil {
		return nil, false, err
	}
	if !active {
		if err := repo.Create(ctx, entry); err != nil {
			// The partial unique index backstops the check under concurrent
			// inserts; losing that race is equivalent to finding an active
			// entry.
			if !db.IsUniqueViolation(err, "idx_resolution_entries_active_issue") {
				return nil, false, err
			}
			active = true
		}
	}
	if active {
		logCtx := s.logg.WithPaymentID(ctx, params.PaymentID)
		s.logg.Info(logCtx, "resolution entry already active; enqueue skipped")
		return nil, false, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":   params.PaymentID,
		"issue_type":   params.IssueType.String(),
		"sla_deadline": entry.SLADeadline,
	})
	s.logg.Info(logCtx, "resolution entry enqueued")
	return entry, true, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ResolutionEntry, error) {
	return s.repo.FindByID(ctx, id)
}

// ListQuery filters and pages the queue listing.
type ListQuery struct {
	Status string
	Limit  int
	Cursor string
}

// ListResult is one queue page plus the operational counts shown alongside.
type ListResult struct {
	Entries       []models.ResolutionEntry
	NextCursor    string
	PendingCount  int64
	BreachedCount int64
}

func (s *service) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	params := ListParams{Limit: query.Limit}

	if trimmed := strings.TrimSpace(query.Status); trimmed != "" {
		status, err := enums.ParseResolutionStatus(trimmed)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Status = &status
	}

	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Cursor = cursor

	entries, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.CountByStatus(ctx, enums.ResolutionStatusPending)
	if err != nil {
		return nil, err
	}
	breached, err := s.repo.CountBreached(ctx, s.now())
	if err != nil {
		return nil, err
	}

	result := &ListResult{
		Entries:       entries,
		PendingCount:  pending,
		BreachedCount: breached,
	}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// Resolve transitions an active entry to resolved. Terminal entries reject
// the mutation to preserve audit integrity.
func (s *service) Resolve(ctx context.Context, id uuid.UUID, assignee, notes string) (*models.ResolutionEntry, error) {
	now := s.now()
	fields := map[string]any{"resolved_at": now}
	if trimmed := strings.TrimSpace(assignee); trimmed != "" {
		fields["assignee"] = trimmed
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		fields["notes"] = trimmed
	}
	return s.transition(ctx, id, enums.ResolutionStatusResolved, fields)
}

// MarkInProgress claims an entry for regenerate/retry admin actions.
func (s *service) MarkInProgress(ctx context.Context, id uuid.UUID, assignee string) (*models.ResolutionEntry, error) {
	fields := map[string]any{}
	if trimmed := strings.TrimSpace(assignee); trimmed != "" {
		fields["assignee"] = trimmed
	}
	return s.transition(ctx, id, enums.ResolutionStatusInProgress, fields)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, to enums.ResolutionStatus, fields map[string]any) (*models.ResolutionEntry, error) {
	updated, err := s.repo.TransitionActive(ctx, id, to, fields)
	if err != nil {
		return nil, err
	}
	if !updated {
		entry, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "resolution entry is terminal").
			WithDetails(map[string]any{"status": entry.Status.String()})
	}

	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entry_id":   id.String(),
		"payment_id": entry.PaymentID,
		"status":     to.String(),
	})
	s.logg.Info(logCtx, "resolution entry transitioned")
	return entry, nil
}
