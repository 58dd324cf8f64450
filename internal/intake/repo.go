package intake

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
)

// Repository reads intake submissions written by the upstream intake flow.
type Repository interface {
	FindLatestByIdentity(ctx context.Context, normalizedEmail string) (*models.IntakeSubmission, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an intake repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindLatestByIdentity returns the newest submission for the identity.
func (r *repository) FindLatestByIdentity(ctx context.Context, normalizedEmail string) (*models.IntakeSubmission, error) {
	var submission models.IntakeSubmission
	err := r.db.WithContext(ctx).
		Where("normalized_email = ?", normalizedEmail).
		Order("created_at DESC").
		First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "intake submission not found")
		}
		return nil, err
	}
	return &submission, nil
}
