package hooks

import (
	"context"

	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

type VestingDeploymentHook struct {
	vestingService services.VestingService
}

// CanHandle implements Hook.
func (h *VestingDeploymentHook) CanHandle(txType models.TransactionType) bool {
	return txType == models.TransactionTypeVestingDeployment
}

// OnTransactionResolved implements Hook.
func (h *VestingDeploymentHook) OnTransactionResolved(ctx context.Context, tx models.Transaction) error {
	contractID, err := metadataString(tx, models.MetadataVestingID)
	if err != nil {
		return err
	}
	outcome, err := outcomeOf(tx)
	if err != nil {
		return err
	}

	return h.vestingService.OnDeploymentResolved(ctx, contractID, services.DeploymentOutcome{
		TransactionID: tx.ID,
		Outcome:       outcome,
		Address:       tx.ContractAddress,
	})
}

func NewVestingDeploymentHook(vestingService services.VestingService) services.Hook {
	return &VestingDeploymentHook{vestingService: vestingService}
}

type FundingHook struct {
	vestingService services.VestingService
}

// CanHandle implements Hook.
func (h *FundingHook) CanHandle(txType models.TransactionType) bool {
	return txType == models.TransactionTypeFundingVesting
}

// OnTransactionResolved implements Hook.
func (h *FundingHook) OnTransactionResolved(ctx context.Context, tx models.Transaction) error {
	contractID, err := metadataString(tx, models.MetadataVestingID)
	if err != nil {
		return err
	}
	outcome, err := outcomeOf(tx)
	if err != nil {
		return err
	}
	return h.vestingService.OnFundingResolved(ctx, contractID, tx.ID, outcome)
}

func NewFundingHook(vestingService services.VestingService) services.Hook {
	return &FundingHook{vestingService: vestingService}
}

// ClaimsHook settles the recipients added by an ADDING_CLAIMS transaction. Recipients
// reference the transaction directly, so no metadata is needed.
type ClaimsHook struct {
	vestingService services.VestingService
}

// CanHandle implements Hook.
func (h *ClaimsHook) CanHandle(txType models.TransactionType) bool {
	return txType == models.TransactionTypeAddingClaims
}

// OnTransactionResolved implements Hook.
func (h *ClaimsHook) OnTransactionResolved(ctx context.Context, tx models.Transaction) error {
	outcome, err := outcomeOf(tx)
	if err != nil {
		return err
	}
	return h.vestingService.OnClaimsResolved(ctx, tx.ID, outcome)
}

func NewClaimsHook(vestingService services.VestingService) services.Hook {
	return &ClaimsHook{vestingService: vestingService}
}
