package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/baselhussain/ketoplan-backend/pkg/enums"
)

// ResolutionEntry is one unrecoverable failure (or abuse flag) awaiting a
// human, each carrying the SLA deadline the background monitor enforces.
// At most one active entry may exist per (payment_id, issue_type); a partial
// unique index backs the application-level check.
type ResolutionEntry struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID       string                 `gorm:"column:payment_id;not null;index"`
	Email           string                 `gorm:"column:email;not null"`
	NormalizedEmail string                 `gorm:"column:normalized_email;not null;index"`
	IssueType       enums.IssueType        `gorm:"column:issue_type;not null"`
	Status          enums.ResolutionStatus `gorm:"column:status;not null;default:'pending';index"`
	SLADeadline     time.Time              `gorm:"column:sla_deadline;not null;index"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	ResolvedAt      *time.Time             `gorm:"column:resolved_at"`
	Assignee        *string                `gorm:"column:assignee"`
	Notes           *string                `gorm:"column:notes"`
}
