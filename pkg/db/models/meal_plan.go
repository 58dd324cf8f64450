package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/baselhussain/ketoplan-backend/pkg/enums"
)

// MealPlan is the generated product for one payment. The unique payment_id
// constraint is the single-writer gate against duplicate webhook deliveries.
type MealPlan struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID       string           `gorm:"column:payment_id;not null;unique"`
	NormalizedEmail string           `gorm:"column:normalized_email;not null;index"`
	StorageObject   *string          `gorm:"column:storage_object"`
	Preferences     json.RawMessage  `gorm:"column:preferences;type:jsonb"`
	Model           string           `gorm:"column:model"`
	Status          enums.PlanStatus `gorm:"column:status;not null;default:'processing'"`
	RefundCount     int              `gorm:"column:refund_count;not null;default:0"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeliveredAt     *time.Time       `gorm:"column:delivered_at"`
}
