package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type TransactionStatus string

type TransactionType string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

const (
	TransactionTypeVestingDeployment TransactionType = "VESTING_DEPLOYMENT"
	TransactionTypeFundingVesting    TransactionType = "FUNDING_VESTING"
	TransactionTypeAddingClaims      TransactionType = "ADDING_CLAIMS"
	TransactionTypeTokenDeployment   TransactionType = "TOKEN_DEPLOYMENT"
	TransactionTypeRevokeClaim       TransactionType = "REVOKE_CLAIM"
)

// Metadata keys linking a transaction back to the records it changes.
const (
	MetadataVestingID  = "vesting_id"
	MetadataTokenID    = "token_id"
	MetadataRecipient  = "recipient"
	MetadataRevokingID = "revoking_id"
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeVestingDeployment, TransactionTypeFundingVesting, TransactionTypeAddingClaims,
		TransactionTypeTokenDeployment, TransactionTypeRevokeClaim:
		return true
	}
	return false
}

// Outcome is the terminal state of a transaction. OutcomeSuccess and OutcomeFailed are
// the only values; a transaction can never be resolved back to pending.
type Outcome struct {
	status TransactionStatus
}

var (
	OutcomeSuccess = Outcome{status: TransactionStatusSuccess}
	OutcomeFailed  = Outcome{status: TransactionStatusFailed}
)

// OutcomeFromStatus converts a terminal status into an Outcome.
func OutcomeFromStatus(status TransactionStatus) (Outcome, bool) {
	switch status {
	case TransactionStatusSuccess:
		return OutcomeSuccess, true
	case TransactionStatusFailed:
		return OutcomeFailed, true
	}
	return Outcome{}, false
}

func (o Outcome) Status() TransactionStatus { return o.status }

func (o Outcome) IsZero() bool { return o.status == "" }

func (o Outcome) Succeeded() bool { return o.status == TransactionStatusSuccess }

func (o Outcome) String() string { return string(o.status) }

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o.status))
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := OutcomeFromStatus(TransactionStatus(s))
	if !ok {
		return fmt.Errorf("invalid transaction outcome %q", s)
	}
	*o = parsed
	return nil
}

// Transaction records a blockchain operation submitted on behalf of an organization.
// Hash is unique per chain.
type Transaction struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Hash           string            `gorm:"not null;uniqueIndex:idx_tx_chain_hash,priority:2" json:"hash"`
	ChainID        uint              `gorm:"not null;uniqueIndex:idx_tx_chain_hash,priority:1" json:"chain_id"`
	SafeHash       *string           `json:"safe_hash,omitempty"` // multisig wrapper hash
	Status         TransactionStatus `gorm:"not null;default:PENDING;index" json:"status"`
	To             string            `json:"to"`
	Type           TransactionType   `gorm:"not null" json:"type"`
	OrganizationID string            `gorm:"not null;index;type:varchar(255)" json:"organization_id"`
	Metadata       JSON              `gorm:"type:text" json:"metadata,omitempty"`
	// ContractAddress is the address created by the transaction as reported by its receipt
	ContractAddress *string `json:"contract_address,omitempty"`
	// Applied is set once the terminal outcome has been handed to the owning component
	Applied bool `gorm:"default:false;index" json:"applied"`
	// Frozen marks a record that received two different terminal outcomes. It needs an operator.
	Frozen         bool               `gorm:"default:false" json:"frozen"`
	ConflictStatus *TransactionStatus `json:"conflict_status,omitempty"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Outcome returns the terminal outcome of the transaction, if it has one.
func (t Transaction) Outcome() (Outcome, bool) {
	return OutcomeFromStatus(t.Status)
}

func (t Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// MetadataString returns the string stored under key in the transaction metadata.
func (t Transaction) MetadataString(key string) (string, bool) {
	v, ok := t.Metadata[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
