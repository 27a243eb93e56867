package hooks

import (
	"context"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

type RevocationHook struct {
	revocationService services.RevocationService
}

// CanHandle implements Hook.
func (h *RevocationHook) CanHandle(txType models.TransactionType) bool {
	return txType == models.TransactionTypeRevokeClaim
}

// OnTransactionResolved implements Hook.
func (h *RevocationHook) OnTransactionResolved(ctx context.Context, tx models.Transaction) error {
	outcome, err := outcomeOf(tx)
	if err != nil {
		return err
	}

	revokingID, ok := tx.MetadataString(models.MetadataRevokingID)
	if !ok {
		revoking, err := h.revocationService.GetByTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		revokingID = revoking.ID
	}
	return h.revocationService.OnRevokeResolved(ctx, revokingID, outcome)
}

func NewRevocationHook(revocationService services.RevocationService) services.Hook {
	return &RevocationHook{revocationService: revocationService}
}
