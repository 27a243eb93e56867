package models

import (
	"time"

	"github.com/rxtech-lab/vesting-mcp/internal/schedule"
	"gorm.io/gorm"
)

// VestingTemplate is a reusable schedule definition owned by an organization.
// LockedAt is set once a contract created from the template is deployed.
type VestingTemplate struct {
	ID             string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string           `gorm:"not null;index;type:varchar(255)" json:"organization_id"`
	Name           string           `gorm:"not null" json:"name"`
	Description    string           `json:"description"`
	TokenID        *string          `gorm:"type:varchar(36)" json:"token_id,omitempty"`
	Schedule       schedule.Details `gorm:"serializer:json;type:text" json:"schedule"`
	LockedAt       *time.Time       `json:"locked_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`
}

func (t *VestingTemplate) IsLocked() bool {
	return t.LockedAt != nil
}
