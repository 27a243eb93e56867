package models

import "time"

type RevokingStatus string

const (
	RevokingStatusPending RevokingStatus = "PENDING"
	RevokingStatusSuccess RevokingStatus = "SUCCESS"
	RevokingStatusFailed  RevokingStatus = "FAILED"
)

// Revoking is one attempt to revoke the unvested allocation of a recipient.
// At most one PENDING attempt may exist per (vesting, recipient).
type Revoking struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	VestingID      string         `gorm:"not null;type:varchar(36);index;uniqueIndex:idx_revoking_open,where:status = 'PENDING'" json:"vesting_id"`
	Recipient      string         `gorm:"not null;uniqueIndex:idx_revoking_open,where:status = 'PENDING'" json:"recipient"`
	TransactionID  uint           `gorm:"not null;index" json:"transaction_id"`
	OrganizationID string         `gorm:"not null;index;type:varchar(255)" json:"organization_id"`
	ChainID        uint           `gorm:"not null" json:"chain_id"`
	Status         RevokingStatus `gorm:"not null;default:PENDING" json:"status"`
	UnvestedAmount string         `gorm:"not null" json:"unvested_amount"`
	VestedAmount   string         `gorm:"not null" json:"vested_amount"`
	RevokePoint    time.Time      `json:"revoke_point"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (r *Revoking) IsTerminal() bool {
	return r.Status != RevokingStatusPending
}
