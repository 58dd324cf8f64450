package models

import "time"

// RefundAbuseCounter tallies refunds per normalized identity. Increments are
// atomic upserts; decrements (refund reversal) floor at zero.
type RefundAbuseCounter struct {
	NormalizedEmail string    `gorm:"column:normalized_email;primaryKey"`
	Count           int       `gorm:"column:count;not null;default:0"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
