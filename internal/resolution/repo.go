package resolution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/pagination"
)

var activeStatuses = []enums.ResolutionStatus{
	enums.ResolutionStatusPending,
	enums.ResolutionStatusInProgress,
}

// Repository persists manual-resolution queue entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.ResolutionEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ResolutionEntry, error)
	HasActive(ctx context.Context, paymentID string, issueType enums.IssueType) (bool, error)
	List(ctx context.Context, params ListParams) ([]models.ResolutionEntry, *pagination.Cursor, error)
	CountByStatus(ctx context.Context, status enums.ResolutionStatus) (int64, error)
	CountBreached(ctx context.Context, now time.Time) (int64, error)
	FindBreached(ctx context.Context, now time.Time) ([]models.ResolutionEntry, error)
	Update(ctx context.Context, entry *models.ResolutionEntry) error
	TransitionActive(ctx context.Context, id uuid.UUID, to enums.ResolutionStatus, fields map[string]any) (bool, error)
}

// ListParams filter and page the queue listing. Entries sort by SLA deadline
// ascending so the most urgent work surfaces first.
type ListParams struct {
	Status *enums.ResolutionStatus
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a resolution repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.ResolutionEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ResolutionEntry, error) {
	var entry models.ResolutionEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "resolution entry not found")
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) HasActive(ctx context.Context, paymentID string, issueType enums.IssueType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ResolutionEntry{}).
		Where("payment_id = ? AND issue_type = ? AND status IN ?", paymentID, issueType, activeStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) List(ctx context.Context, params ListParams) ([]models.ResolutionEntry, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.ResolutionEntry{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(sla_deadline, id) > (?, ?)", params.Cursor.Time, params.Cursor.ID)
	}

	var entries []models.ResolutionEntry
	if err := query.Order("sla_deadline ASC, id ASC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > normalized {
		next := entries[normalized]
		entries = entries[:normalized]
		return entries, &pagination.Cursor{Time: next.SLADeadline, ID: next.ID}, nil
	}
	return entries, nil, nil
}

func (r *repository) CountByStatus(ctx context.Context, status enums.ResolutionStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ResolutionEntry{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *repository) CountBreached(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ResolutionEntry{}).
		Where("status IN ? AND sla_deadline < ?", activeStatuses, now).
		Count(&count).Error
	return count, err
}

// FindBreached returns every active entry past its deadline, oldest first.
func (r *repository) FindBreached(ctx context.Context, now time.Time) ([]models.ResolutionEntry, error) {
	var entries []models.ResolutionEntry
	err := r.db.WithContext(ctx).
		Where("status IN ? AND sla_deadline < ?", activeStatuses, now).
		Order("sla_deadline ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) Update(ctx context.Context, entry *models.ResolutionEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// TransitionActive moves an entry to the target status only while it is still
// active, reporting whether a row changed. The status guard in the WHERE
// clause keeps the monitor and admin actions from clobbering terminal states.
func (r *repository) TransitionActive(ctx context.Context, id uuid.UUID, to enums.ResolutionStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.ResolutionEntry{}).
		Where("id = ? AND status IN ?", id, activeStatuses).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
