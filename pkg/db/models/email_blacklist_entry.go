package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/baselhussain/ketoplan-backend/pkg/enums"
)

// EmailBlacklistEntry blocks checkout for a normalized identity until expiry.
type EmailBlacklistEntry struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NormalizedEmail string                `gorm:"column:normalized_email;not null;unique"`
	Reason          enums.BlacklistReason `gorm:"column:reason;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt       time.Time             `gorm:"column:expires_at;not null;index"`
}

// Active reports whether the block is still in force.
func (e EmailBlacklistEntry) Active(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
