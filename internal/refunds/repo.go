package refunds

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
)

// Repository persists refund-abuse counters and the email blacklist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	IncrementCounter(ctx context.Context, normalizedEmail string, now time.Time) (int, error)
	DecrementCounter(ctx context.Context, normalizedEmail string, now time.Time) error
	GetCounter(ctx context.Context, normalizedEmail string) (*models.RefundAbuseCounter, error)
	UpsertBlacklist(ctx context.Context, entry *models.EmailBlacklistEntry) error
	FindBlacklist(ctx context.Context, normalizedEmail string) (*models.EmailBlacklistEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a refunds repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// IncrementCounter bumps the refund count for the identity with an atomic
// insert-or-increment, then returns the resulting count. Two concurrent
// refund webhooks for one identity both land.
func (r *repository) IncrementCounter(ctx context.Context, normalizedEmail string, now time.Time) (int, error) {
	counter := models.RefundAbuseCounter{
		NormalizedEmail: normalizedEmail,
		Count:           1,
		UpdatedAt:       now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "normalized_email"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":      gorm.Expr("refund_abuse_counters.count + 1"),
				"updated_at": now,
			}),
		}).
		Create(&counter).Error
	if err != nil {
		return 0, err
	}

	stored, err := r.GetCounter(ctx, normalizedEmail)
	if err != nil {
		return 0, err
	}
	return stored.Count, nil
}

// DecrementCounter backs out one refund (provider refund reversal), never
// going below zero.
func (r *repository) DecrementCounter(ctx context.Context, normalizedEmail string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.RefundAbuseCounter{}).
		Where("normalized_email = ? AND count > 0", normalizedEmail).
		Updates(map[string]any{
			"count":      gorm.Expr("count - 1"),
			"updated_at": now,
		}).Error
}

func (r *repository) GetCounter(ctx context.Context, normalizedEmail string) (*models.RefundAbuseCounter, error) {
	var counter models.RefundAbuseCounter
	err := r.db.WithContext(ctx).Where("normalized_email = ?", normalizedEmail).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.RefundAbuseCounter{NormalizedEmail: normalizedEmail}, nil
		}
		return nil, err
	}
	return &counter, nil
}

// UpsertBlacklist writes or refreshes the block for an identity, extending
// the expiry on repeat signals.
func (r *repository) UpsertBlacklist(ctx context.Context, entry *models.EmailBlacklistEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "normalized_email"}},
			DoUpdates: clause.Assignments(map[string]any{
				"reason":     entry.Reason,
				"expires_at": entry.ExpiresAt,
			}),
		}).
		Create(entry).Error
}

func (r *repository) FindBlacklist(ctx context.Context, normalizedEmail string) (*models.EmailBlacklistEntry, error) {
	var entry models.EmailBlacklistEntry
	err := r.db.WithContext(ctx).Where("normalized_email = ?", normalizedEmail).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
