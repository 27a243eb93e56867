package models

import "time"

// Token is an ERC-20 token whose deployment is tracked by a TOKEN_DEPLOYMENT transaction.
type Token struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string    `gorm:"not null;index;type:varchar(255)" json:"organization_id"`
	ChainID        uint      `gorm:"not null" json:"chain_id"`
	Name           string    `gorm:"not null" json:"name"`
	Symbol         string    `gorm:"not null" json:"symbol"`
	Decimals       uint8     `gorm:"default:18" json:"decimals"`
	Address        *string   `json:"address"`
	TransactionID  *uint     `gorm:"index" json:"transaction_id"`
	IsDeployed     bool      `gorm:"default:false" json:"is_deployed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
