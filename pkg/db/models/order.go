package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baselhussain/ketoplan-backend/pkg/enums"
)

// Order records one payment transaction keyed by the provider payment id.
// Rows are never deleted here; a retention job outside this service owns that.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID       string            `gorm:"column:payment_id;not null;unique"`
	Email           string            `gorm:"column:email;not null"`
	NormalizedEmail string            `gorm:"column:normalized_email;not null;index"`
	AmountCents     int64             `gorm:"column:amount_cents;not null"`
	Currency        string            `gorm:"column:currency;not null;default:'usd'"`
	PaymentMethod   string            `gorm:"column:payment_method"`
	Status          enums.OrderStatus `gorm:"column:status;not null;default:'succeeded'"`
	ProviderTS      time.Time         `gorm:"column:provider_ts;not null"`
	ReceivedAt      time.Time         `gorm:"column:received_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// Amount returns the order total as a decimal in major units.
func (o Order) Amount() decimal.Decimal {
	return decimal.NewFromInt(o.AmountCents).Div(decimal.NewFromInt(100))
}
