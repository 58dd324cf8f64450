package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
)

// Repository persists payment transactions and their generated plans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrderIfAbsent(ctx context.Context, order *models.Order) (bool, error)
	CreatePlanIfAbsent(ctx context.Context, plan *models.MealPlan) (bool, error)
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	FindPlanByPaymentID(ctx context.Context, paymentID string) (*models.MealPlan, error)
	UpdateOrderStatus(ctx context.Context, paymentID string, status enums.OrderStatus) error
	UpdatePlanStatus(ctx context.Context, paymentID string, status enums.PlanStatus) error
	SetPlanPreferences(ctx context.Context, paymentID string, preferences json.RawMessage) error
	SetPlanArtifact(ctx context.Context, paymentID, storageObject, model string) error
	MarkPlanDelivered(ctx context.Context, paymentID string, deliveredAt time.Time) error
	IncrementPlanRefundCount(ctx context.Context, paymentID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrderIfAbsent inserts the order unless one already exists for its
// payment id. Reports whether a row was written.
func (r *repository) CreateOrderIfAbsent(ctx context.Context, order *models.Order) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(order)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreatePlanIfAbsent is the single-writer gate for orchestration: the unique
// payment_id constraint guarantees at most one plan row per payment even
// under concurrent duplicate webhook deliveries.
func (r *repository) CreatePlanIfAbsent(ctx context.Context, plan *models.MealPlan) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(plan)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindPlanByPaymentID(ctx context.Context, paymentID string) (*models.MealPlan, error) {
	var plan models.MealPlan
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "meal plan not found")
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) UpdateOrderStatus(ctx context.Context, paymentID string, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_id = ?", paymentID).
		Update("status", status).Error
}

func (r *repository) UpdatePlanStatus(ctx context.Context, paymentID string, status enums.PlanStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.MealPlan{}).
		Where("payment_id = ?", paymentID).
		Update("status", status).Error
}

func (r *repository) SetPlanPreferences(ctx context.Context, paymentID string, preferences json.RawMessage) error {
	return r.db.WithContext(ctx).
		Model(&models.MealPlan{}).
		Where("payment_id = ?", paymentID).
		Update("preferences", preferences).Error
}

// SetPlanArtifact records the durable storage reference and the model that
// produced the plan, committed immediately after the upload succeeds.
func (r *repository) SetPlanArtifact(ctx context.Context, paymentID, storageObject, model string) error {
	return r.db.WithContext(ctx).
		Model(&models.MealPlan{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]any{
			"storage_object": storageObject,
			"model":          model,
		}).Error
}

func (r *repository) MarkPlanDelivered(ctx context.Context, paymentID string, deliveredAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.MealPlan{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]any{
			"status":       enums.PlanStatusCompleted,
			"delivered_at": deliveredAt,
		}).Error
}

func (r *repository) IncrementPlanRefundCount(ctx context.Context, paymentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.MealPlan{}).
		Where("payment_id = ?", paymentID).
		Update("refund_count", gorm.Expr("refund_count + 1")).Error
}
