package hooks

import (
	"fmt"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

// metadataString reads the id of the owning record from the transaction metadata.
// Every transaction is recorded together with that id, so a missing one is a
// consistency violation rather than something a retry could fix.
func metadataString(tx models.Transaction, key string) (string, error) {
	v, ok := tx.MetadataString(key)
	if !ok {
		return "", fmt.Errorf("transaction %d has no %s: %w", tx.ID, key, services.ErrConsistencyViolation)
	}
	return v, nil
}

func outcomeOf(tx models.Transaction) (models.Outcome, error) {
	outcome, ok := tx.Outcome()
	if !ok {
		return models.Outcome{}, fmt.Errorf("transaction %d is %s: %w", tx.ID, tx.Status, services.ErrInvalidState)
	}
	return outcome, nil
}

// RegisterAll adds every outcome hook to the hook service.
func RegisterAll(hookService services.HookService, vesting services.VestingService, tokens services.TokenService, revocations services.RevocationService) error {
	for _, hook := range []services.Hook{
		NewVestingDeploymentHook(vesting),
		NewFundingHook(vesting),
		NewClaimsHook(vesting),
		NewRevocationHook(revocations),
		NewTokenDeploymentHook(tokens),
	} {
		if err := hookService.AddHook(hook); err != nil {
			return err
		}
	}
	return nil
}
