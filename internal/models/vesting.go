package models

import (
	"errors"
	"slices"
	"time"

	"github.com/rxtech-lab/vesting-mcp/internal/schedule"
)

type VestingStatus string

const (
	VestingStatusDraft       VestingStatus = "DRAFT"
	VestingStatusDeploying   VestingStatus = "DEPLOYING"
	VestingStatusDeployed    VestingStatus = "DEPLOYED"
	VestingStatusActive      VestingStatus = "ACTIVE"
	VestingStatusDeactivated VestingStatus = "DEACTIVATED"
)

// VestingContract is a vesting program and the on-chain contract that enforces it.
// Schedule is a copy of the template schedule taken when the draft was created, so
// later template edits never change a live schedule.
type VestingContract struct {
	ID                   string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID       string           `gorm:"not null;index;type:varchar(255)" json:"organization_id"`
	TokenID              string           `gorm:"index;type:varchar(36)" json:"token_id"`
	TemplateID           string           `gorm:"index;type:varchar(36)" json:"template_id"`
	Name                 string           `gorm:"not null" json:"name"`
	ChainID              uint             `gorm:"not null" json:"chain_id"`
	Address              *string          `json:"address"`
	TransactionID        *uint            `gorm:"index" json:"transaction_id"`
	FundingTransactionID *uint            `gorm:"index" json:"funding_transaction_id"`
	Status               VestingStatus    `gorm:"not null;default:DRAFT" json:"status"`
	IsDeployed           bool             `gorm:"default:false" json:"is_deployed"`
	IsFunded             bool             `gorm:"default:false" json:"is_funded"`
	IsActive             bool             `gorm:"default:false" json:"is_active"`
	Schedule             schedule.Details `gorm:"serializer:json;type:text" json:"schedule"`
	AchievedMilestones   []int            `gorm:"serializer:json;type:text" json:"achieved_milestones"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// CheckInvariants verifies the deployment flags agree with each other.
func (v *VestingContract) CheckInvariants() error {
	if (v.Address != nil) != v.IsDeployed {
		return errors.New("address must be set if and only if the contract is deployed")
	}
	if v.IsActive && !v.IsDeployed {
		return errors.New("a contract cannot be active before it is deployed")
	}
	if v.IsActive != (v.Status == VestingStatusActive) {
		return errors.New("is_active must match the ACTIVE status")
	}
	return nil
}

// HasAchieved reports whether the milestone with the given sequence was recorded.
func (v *VestingContract) HasAchieved(sequence int) bool {
	return slices.Contains(v.AchievedMilestones, sequence)
}

type RecipientStatus string

const (
	RecipientStatusPending RecipientStatus = "PENDING"
	RecipientStatusAdding  RecipientStatus = "ADDING"
	RecipientStatusAdded   RecipientStatus = "ADDED"
)

// VestingRecipient is one beneficiary of a vesting contract.
type VestingRecipient struct {
	ID                 string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	VestingID          string          `gorm:"not null;uniqueIndex:idx_recipient_vesting_address,priority:1;type:varchar(36)" json:"vesting_id"`
	OrganizationID     string          `gorm:"not null;index;type:varchar(255)" json:"organization_id"`
	Address            string          `gorm:"not null;uniqueIndex:idx_recipient_vesting_address,priority:2" json:"address"`
	Allocation         string          `gorm:"not null" json:"allocation"`
	Status             RecipientStatus `gorm:"not null;default:PENDING" json:"status"`
	ClaimTransactionID *uint           `gorm:"index" json:"claim_transaction_id"`
	RevokedAt          *time.Time      `json:"revoked_at,omitempty"`
	VestedAtRevoke     string          `json:"vested_at_revoke,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (r *VestingRecipient) IsRevoked() bool {
	return r.RevokedAt != nil
}
