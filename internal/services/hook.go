package services

import (
	"context"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
)

// Hook is used to perform actions when a transaction reaches a terminal outcome base on their transaction type
type Hook interface {
	// CanHandle is used to check if the hook can handle the transaction type
	CanHandle(txType models.TransactionType) bool
	// OnTransactionResolved is called once the transaction is SUCCESS or FAILED. It must be
	// idempotent: the same transaction can be delivered again after a crash or a replay.
	OnTransactionResolved(ctx context.Context, tx models.Transaction) error
}
