package hooks

import (
	"context"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

type TokenDeploymentHook struct {
	tokenService services.TokenService
}

// CanHandle implements Hook.
func (t *TokenDeploymentHook) CanHandle(txType models.TransactionType) bool {
	return txType == models.TransactionTypeTokenDeployment
}

// OnTransactionResolved implements Hook.
func (t *TokenDeploymentHook) OnTransactionResolved(ctx context.Context, tx models.Transaction) error {
	tokenID, err := metadataString(tx, models.MetadataTokenID)
	if err != nil {
		return err
	}
	outcome, err := outcomeOf(tx)
	if err != nil {
		return err
	}
	// the deployed address comes from the receipt
	return t.tokenService.OnTokenDeploymentResolved(ctx, tokenID, tx.ID, outcome, tx.ContractAddress)
}

func NewTokenDeploymentHook(tokenService services.TokenService) services.Hook {
	return &TokenDeploymentHook{
		tokenService: tokenService,
	}
}
