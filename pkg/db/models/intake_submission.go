package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IntakeSubmission holds the raw intake-form answers for one customer.
// Written by the (out of scope) intake flow; this service only reads it.
type IntakeSubmission struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email           string          `gorm:"column:email;not null"`
	NormalizedEmail string          `gorm:"column:normalized_email;not null;index"`
	Answers         json.RawMessage `gorm:"column:answers;type:jsonb;not null"`
	CalorieTarget   int             `gorm:"column:calorie_target"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt       time.Time       `gorm:"column:expires_at;not null"`
}

// Expired reports whether the submission is past its retention window.
func (s IntakeSubmission) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
